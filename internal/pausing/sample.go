package pausing

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/track"
	"github.com/inodb/pauseidx/internal/window"
)

// Sample names a signal track.
type Sample struct {
	Name string
	Path string
}

// Stats are the per-sample statistics of one gene.
type Stats struct {
	MeanAcross   float64
	PromoterMean float64
	GeneBodyMean float64
	Index        Stat
}

// Row is one gene of a sample result.
type Row struct {
	Gene  annotation.Gene
	Short bool // no promoter/gene-body windows; means are 0, index 0 unless gated
	Stats
}

// SampleResult holds the rows of one sample in annotation order.
type SampleResult struct {
	Name string
	Rows []Row

	Short      int // genes too short for promoter/gene-body windows
	Suppressed int // genes whose index was gated
	Uncovered  int // genes on chromosomes missing from the track
}

// Loader computes sample results from signal tracks.
type Loader struct {
	params window.Params
	open   track.Opener
	logger *zap.Logger
}

// NewLoader creates a loader that builds windows with params and opens
// tracks with open.
func NewLoader(params window.Params, open track.Opener) *Loader {
	return &Loader{
		params: params,
		open:   open,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and info messages.
func (l *Loader) SetLogger(logger *zap.Logger) {
	l.logger = logger
}

// LoadSample opens the sample's track, computes statistics for every gene
// and closes the track again.
func (l *Loader) LoadSample(s Sample, genes []annotation.Gene, threshold float64) (*SampleResult, error) {
	tr, err := l.open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("sample %s: open track: %w", s.Name, err)
	}
	defer tr.Close()

	l.logger.Info("loading sample",
		zap.String("sample", s.Name),
		zap.String("path", s.Path),
		zap.Float64("threshold", threshold))

	res, err := l.Compute(s.Name, tr, genes, threshold)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", s.Name, err)
	}

	l.logger.Info("loaded sample",
		zap.String("sample", s.Name),
		zap.Int("genes", len(res.Rows)),
		zap.Int("short", res.Short),
		zap.Int("suppressed", res.Suppressed),
		zap.Int("uncovered", res.Uncovered))

	return res, nil
}

// Compute calculates the statistics of every gene on an open track.
func (l *Loader) Compute(name string, tr track.Track, genes []annotation.Gene, threshold float64) (*SampleResult, error) {
	res := &SampleResult{
		Name: name,
		Rows: make([]Row, 0, len(genes)),
	}
	missingChroms := make(map[string]bool)

	for i := range genes {
		g := &genes[i]

		if _, ok := tr.ChromLength(g.Chrom); !ok && !missingChroms[g.Chrom] {
			missingChroms[g.Chrom] = true
			l.logger.Warn("chromosome not in track, treating as uncovered",
				zap.String("sample", name),
				zap.String("chrom", g.Chrom))
		}

		row, err := l.geneRow(tr, g, threshold)
		if err != nil {
			return nil, err
		}

		if row.Short {
			res.Short++
		}
		if !row.Index.Valid {
			res.Suppressed++
		}
		if missingChroms[g.Chrom] {
			res.Uncovered++
		}
		res.Rows = append(res.Rows, row)
	}

	return res, nil
}

// geneRow computes the statistics of one gene.
func (l *Loader) geneRow(tr track.Track, g *annotation.Gene, threshold float64) (Row, error) {
	set, err := l.params.Build(g)
	if err != nil {
		return Row{}, err
	}

	row := Row{Gene: *g}

	row.MeanAcross, err = windowMean(tr, set.Across)
	if err != nil {
		return Row{}, fmt.Errorf("gene %s across: %w", g.ID, err)
	}

	if !set.HasBody {
		row.Short = true
		row.Index = Gate(0, row.MeanAcross, threshold)
		return row, nil
	}

	row.PromoterMean, err = windowMean(tr, set.Promoter)
	if err != nil {
		return Row{}, fmt.Errorf("gene %s promoter: %w", g.ID, err)
	}
	row.GeneBodyMean, err = windowMean(tr, set.GeneBody)
	if err != nil {
		return Row{}, fmt.Errorf("gene %s gene body: %w", g.ID, err)
	}

	row.Index = Gate(Index(row.PromoterMean, row.GeneBodyMean), row.MeanAcross, threshold)
	return row, nil
}

// windowMean averages the track over w after clipping it to the
// chromosome. Chromosomes unknown to the track and windows lying outside
// it have no coverage and average to 0. Bases of an Unbounded chromosome
// past the last record count as 0.
func windowMean(tr track.Track, w window.Window) (float64, error) {
	length, ok := tr.ChromLength(w.Chrom)
	if !ok {
		return 0, nil
	}
	w = w.Clamp(0, length)
	if w.Empty() {
		return 0, nil
	}
	return MeanSignal(tr, w)
}
