package pausing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/track"
	"github.com/inodb/pauseidx/internal/window"
)

// memoryOpener serves in-memory tracks by path and records them so tests
// can check they were closed.
type memoryOpener struct {
	tracks map[string]*track.Memory
}

func (o *memoryOpener) open(path string) (track.Track, error) {
	tr, ok := o.tracks[path]
	if !ok {
		return nil, errors.New("no such track: " + path)
	}
	return tr, nil
}

func constantTrack(v float64) *track.Memory {
	m := track.NewMemory()
	m.Constant("chr2L", 10000, v)
	return m
}

func newTestLoader(tracks map[string]*track.Memory) *Loader {
	o := &memoryOpener{tracks: tracks}
	return NewLoader(window.DefaultParams(), o.open)
}

func gene(id string, start, end int64, strand string) annotation.Gene {
	return annotation.Gene{ID: id, Chrom: "chr2L", Start: start, End: end, Strand: strand}
}

func TestCompute_UniformSignal(t *testing.T) {
	l := newTestLoader(nil)
	genes := []annotation.Gene{
		gene("fwd", 1000, 3000, "+"),
		gene("rev", 1000, 3000, "-"),
	}

	res, err := l.Compute("s1", constantTrack(2.0), genes, 0)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	for _, row := range res.Rows {
		assert.Equal(t, 2.0, row.MeanAcross, row.Gene.ID)
		assert.Equal(t, 2.0, row.PromoterMean, row.Gene.ID)
		assert.Equal(t, 2.0, row.GeneBodyMean, row.Gene.ID)
		assert.Equal(t, Value(1.0), row.Index, row.Gene.ID)
		assert.False(t, row.Short)
	}
	assert.Equal(t, 0, res.Short)
	assert.Equal(t, 0, res.Suppressed)
}

func TestCompute_ShortGene(t *testing.T) {
	l := newTestLoader(nil)
	m := track.NewMemory()
	values := make([]float64, 10000)
	for i := range values {
		values[i] = float64(i % 7)
	}
	m.Set("chr2L", values)

	genes := []annotation.Gene{
		gene("short500", 2000, 2500, "+"),
		gene("short800", 4000, 4800, "-"),
	}

	res, err := l.Compute("s1", m, genes, 0)
	require.NoError(t, err)
	for _, row := range res.Rows {
		assert.True(t, row.Short)
		assert.Equal(t, 0.0, row.PromoterMean)
		assert.Equal(t, 0.0, row.GeneBodyMean)
		assert.Equal(t, Value(0.0), row.Index)
		assert.NotZero(t, row.MeanAcross)
	}
	assert.Equal(t, 2, res.Short)
	assert.Equal(t, 0, res.Suppressed)

	// The across mean gates short genes like any other.
	res, err = l.Compute("s1", m, genes, 1e6)
	require.NoError(t, err)
	for _, row := range res.Rows {
		assert.True(t, row.Short)
		assert.Equal(t, Missing, row.Index)
	}
	assert.Equal(t, 2, res.Short)
	assert.Equal(t, 2, res.Suppressed)
}

func TestCompute_ShortGeneGatedBySPT5(t *testing.T) {
	l := newTestLoader(nil)
	genes := []annotation.Gene{gene("short", 7000, 7500, "+")}

	res, err := l.Compute("s1", constantTrack(10.0), genes, DefaultThresholds().Threshold(SPT5))
	require.NoError(t, err)
	row := res.Rows[0]
	assert.Equal(t, 10.0, row.MeanAcross)
	assert.False(t, row.Index.Valid)
	assert.Equal(t, "NA", row.Index.Format("NA"))

	res, err = l.Compute("s1", constantTrack(600.0), genes, DefaultThresholds().Threshold(SPT5))
	require.NoError(t, err)
	assert.Equal(t, Value(0.0), res.Rows[0].Index)
}

func TestCompute_ZeroGeneBody(t *testing.T) {
	l := newTestLoader(nil)
	values := make([]float64, 10000)
	for i := 750; i < 1250; i++ {
		values[i] = 4
	}
	m := track.NewMemory()
	m.Set("chr2L", values)

	res, err := l.Compute("s1", m, []annotation.Gene{gene("paused", 1000, 3000, "+")}, 0)
	require.NoError(t, err)
	row := res.Rows[0]
	assert.Equal(t, 4.0, row.PromoterMean)
	assert.Equal(t, 0.0, row.GeneBodyMean)
	assert.Equal(t, Value(row.PromoterMean/ZeroBodyDenominator), row.Index)
}

func TestCompute_Gating(t *testing.T) {
	l := newTestLoader(nil)
	genes := []annotation.Gene{gene("g", 1000, 3000, "+")}

	res, err := l.Compute("s1", constantTrack(10.0), genes, DefaultThresholds().Threshold("SPT5"))
	require.NoError(t, err)
	row := res.Rows[0]
	assert.Equal(t, 10.0, row.MeanAcross)
	assert.Equal(t, 10.0, row.PromoterMean)
	assert.False(t, row.Index.Valid)
	assert.Equal(t, 1, res.Suppressed)

	res, err = l.Compute("s1", constantTrack(10.0), genes, DefaultThresholds().Threshold("NELF"))
	require.NoError(t, err)
	assert.Equal(t, Value(1.0), res.Rows[0].Index)
}

func TestCompute_ClampsAtChromosomeEnds(t *testing.T) {
	l := newTestLoader(nil)
	genes := []annotation.Gene{
		gene("start", 100, 2000, "+"), // promoter reaches below 0
		gene("end", 8000, 9900, "-"),  // promoter reaches past 10000
	}

	res, err := l.Compute("s1", constantTrack(3.0), genes, 0)
	require.NoError(t, err)
	for _, row := range res.Rows {
		assert.Equal(t, 3.0, row.MeanAcross, row.Gene.ID)
		assert.Equal(t, 3.0, row.PromoterMean, row.Gene.ID)
		assert.Equal(t, Value(1.0), row.Index, row.Gene.ID)
	}
}

func TestCompute_BedGraphEndsInsideGene(t *testing.T) {
	l := newTestLoader(nil)
	bg, err := track.ParseBedGraph(strings.NewReader("chr2L\t0\t2000\t2\n"))
	require.NoError(t, err)

	res, err := l.Compute("s1", bg, []annotation.Gene{gene("g", 1000, 3000, "+")}, 0)
	require.NoError(t, err)
	row := res.Rows[0]

	// [2000, 3000) has no records and counts as zero signal.
	assert.InDelta(t, 2.0*1250/2250, row.MeanAcross, 1e-12)
	assert.Equal(t, 2.0, row.PromoterMean)
	assert.InDelta(t, 2.0*750/1750, row.GeneBodyMean, 1e-12)
	assert.InDelta(t, 2.0/(2.0*750/1750), row.Index.Value, 1e-9)
	assert.True(t, row.Index.Valid)
}

func TestCompute_BedGraphChromSizesClip(t *testing.T) {
	l := newTestLoader(nil)
	bg, err := track.ParseBedGraph(strings.NewReader("chr2L\t0\t2000\t2\n"))
	require.NoError(t, err)
	require.NoError(t, bg.SetChromSizes(map[string]int64{"chr2L": 2000}))

	// The reverse-strand promoter reaches past the chromosome end and is clipped.
	res, err := l.Compute("s1", bg, []annotation.Gene{gene("g", 100, 1900, "-")}, 0)
	require.NoError(t, err)
	row := res.Rows[0]
	assert.Equal(t, 2.0, row.MeanAcross)
	assert.Equal(t, 2.0, row.PromoterMean)
	assert.Equal(t, Value(1.0), row.Index)
}

func TestCompute_UncoveredChromosome(t *testing.T) {
	l := newTestLoader(nil)
	genes := []annotation.Gene{
		gene("covered", 1000, 3000, "+"),
		{ID: "elsewhere", Chrom: "chr4", Start: 1000, End: 3000, Strand: "-"},
	}

	res, err := l.Compute("s1", constantTrack(2.0), genes, 0)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 1, res.Uncovered)

	row := res.Rows[1]
	assert.Equal(t, 0.0, row.MeanAcross)
	assert.Equal(t, 0.0, row.PromoterMean)
	assert.Equal(t, 0.0, row.GeneBodyMean)
	assert.Equal(t, Value(0.0), row.Index)
}

func TestCompute_InvalidStrand(t *testing.T) {
	l := newTestLoader(nil)
	genes := []annotation.Gene{gene("ok", 1000, 3000, "+"), gene("bad", 1000, 3000, ".")}

	_, err := l.Compute("s1", constantTrack(2.0), genes, 0)
	assert.ErrorIs(t, err, window.ErrInvalidStrand)
}

func TestLoadSample_ClosesTrack(t *testing.T) {
	tr := constantTrack(2.0)
	l := newTestLoader(map[string]*track.Memory{"a.bw": tr})

	res, err := l.LoadSample(Sample{Name: "a", Path: "a.bw"}, []annotation.Gene{gene("g", 1000, 3000, "+")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Name)
	assert.True(t, tr.Closed())

	bad := constantTrack(2.0)
	l = newTestLoader(map[string]*track.Memory{"b.bw": bad})
	_, err = l.LoadSample(Sample{Name: "b", Path: "b.bw"}, []annotation.Gene{gene("g", 1000, 3000, "?")}, 0)
	assert.ErrorIs(t, err, window.ErrInvalidStrand)
	assert.True(t, bad.Closed())
}

func TestLoadSample_OpenFailure(t *testing.T) {
	l := newTestLoader(nil)
	_, err := l.LoadSample(Sample{Name: "missing", Path: "nope.bw"}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample missing")
}
