package track

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testChrom struct {
	name   string
	length uint32
}

// testSection is one data block: a section header plus encoded records.
type testSection struct {
	header  sectionHeader
	records []byte
}

func bedGraphSection(order binary.ByteOrder, chromID uint32, recs ...[3]float64) testSection {
	var buf bytes.Buffer
	for _, r := range recs {
		binary.Write(&buf, order, uint32(r[0]))
		binary.Write(&buf, order, uint32(r[1]))
		binary.Write(&buf, order, float32(r[2]))
	}
	return testSection{
		header: sectionHeader{
			ChromID: chromID, Start: uint32(recs[0][0]), End: uint32(recs[len(recs)-1][1]),
			Type: sectionBedGraph, ItemCount: uint16(len(recs)),
		},
		records: buf.Bytes(),
	}
}

func varStepSection(order binary.ByteOrder, chromID, span uint32, starts []uint32, vals []float32) testSection {
	var buf bytes.Buffer
	for i := range starts {
		binary.Write(&buf, order, starts[i])
		binary.Write(&buf, order, vals[i])
	}
	return testSection{
		header: sectionHeader{
			ChromID: chromID, Start: starts[0], End: starts[len(starts)-1] + span,
			Span: span, Type: sectionVarStep, ItemCount: uint16(len(starts)),
		},
		records: buf.Bytes(),
	}
}

func fixedStepSection(order binary.ByteOrder, chromID, start, step, span uint32, vals []float32) testSection {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, order, v)
	}
	return testSection{
		header: sectionHeader{
			ChromID: chromID, Start: start, End: start + uint32(len(vals)-1)*step + span,
			Step: step, Span: span, Type: sectionFixedStep, ItemCount: uint16(len(vals)),
		},
		records: buf.Bytes(),
	}
}

// writeTestBigWig writes a minimal bigWig file without zoom levels. The
// chromosome tree and the R-tree each consist of a single leaf node.
func writeTestBigWig(t *testing.T, order binary.ByteOrder, compress bool, chroms []testChrom, sections []testSection) string {
	t.Helper()

	keySize := 0
	for _, c := range chroms {
		keySize = max(keySize, len(c.name))
	}

	// Encode data blocks first so their sizes are known.
	blocks := make([][]byte, len(sections))
	maxRaw := 0
	for i, s := range sections {
		var raw bytes.Buffer
		require.NoError(t, binary.Write(&raw, order, s.header))
		raw.Write(s.records)
		maxRaw = max(maxRaw, raw.Len())

		if !compress {
			blocks[i] = raw.Bytes()
			continue
		}
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		_, err := zw.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		blocks[i] = z.Bytes()
	}

	const headerSize = 64
	chromTreeOffset := uint64(headerSize)
	chromTreeSize := uint64(32 + 4 + len(chroms)*(keySize+8))
	dataOffset := chromTreeOffset + chromTreeSize
	dataSize := uint64(4)
	for _, b := range blocks {
		dataSize += uint64(len(b))
	}
	indexOffset := dataOffset + dataSize

	var buf bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&buf, order, v)) }

	// Header
	w(uint32(bigWigMagic))
	h := bbiHeader{
		Version:         4,
		ChromTreeOffset: chromTreeOffset,
		DataOffset:      dataOffset,
		IndexOffset:     indexOffset,
	}
	if compress {
		h.UncompressBufSize = uint32(maxRaw)
	}
	w(h)
	require.Equal(t, headerSize, buf.Len())

	// Chromosome B+ tree
	w(chromTreeHeader{
		Magic: chromTreeMagic, BlockSize: uint32(len(chroms)),
		KeySize: uint32(keySize), ValSize: 8, ItemCount: uint64(len(chroms)),
	})
	w(nodeHeader{IsLeaf: 1, Count: uint16(len(chroms))})
	for i, c := range chroms {
		key := make([]byte, keySize)
		copy(key, c.name)
		buf.Write(key)
		w(uint32(i))
		w(c.length)
	}

	// Data
	require.Equal(t, int(dataOffset), buf.Len())
	w(uint32(len(blocks)))
	offsets := make([]uint64, len(blocks))
	for i, b := range blocks {
		offsets[i] = uint64(buf.Len())
		buf.Write(b)
	}

	// R-tree index
	require.Equal(t, int(indexOffset), buf.Len())
	w(rTreeHeader{Magic: rTreeMagic, BlockSize: 256, ItemCount: uint64(len(blocks)), ItemsPerSlot: 1024})
	w(nodeHeader{IsLeaf: 1, Count: uint16(len(sections))})
	for i, s := range sections {
		w(s.header.ChromID)
		w(s.header.Start)
		w(s.header.ChromID)
		w(s.header.End)
		w(offsets[i])
		w(uint64(len(blocks[i])))
	}

	path := filepath.Join(t.TempDir(), "test.bw")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func testBigWig(t *testing.T, order binary.ByteOrder, compress bool) string {
	chroms := []testChrom{{"chr2L", 10000}, {"chrX", 5000}}
	sections := []testSection{
		bedGraphSection(order, 0, [3]float64{100, 200, 2}, [3]float64{200, 250, 4}),
		varStepSection(order, 0, 10, []uint32{1000, 1020}, []float32{1.5, 3}),
		fixedStepSection(order, 1, 0, 100, 50, []float32{1, 2, 3}),
	}
	return writeTestBigWig(t, order, compress, chroms, sections)
}

func TestBigWig_Values(t *testing.T) {
	for _, tc := range []struct {
		name     string
		order    binary.ByteOrder
		compress bool
	}{
		{"little endian compressed", binary.LittleEndian, true},
		{"little endian uncompressed", binary.LittleEndian, false},
		{"big endian compressed", binary.BigEndian, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := testBigWig(t, tc.order, tc.compress)

			isBW, err := IsBigWigFile(path)
			require.NoError(t, err)
			assert.True(t, isBW)

			bw, err := OpenBigWig(path)
			require.NoError(t, err)
			defer bw.Close()

			for chrom, want := range map[string]int64{"chr2L": 10000, "chrX": 5000} {
				length, ok := bw.ChromLength(chrom)
				assert.True(t, ok, chrom)
				assert.Equal(t, want, length, chrom)
			}
			_, ok := bw.ChromLength("chr4")
			assert.False(t, ok)

			// bedGraph records
			vals, err := bw.Values("chr2L", 95, 255)
			require.NoError(t, err)
			require.Len(t, vals, 160)
			assert.True(t, math.IsNaN(vals[0]))
			assert.Equal(t, 2.0, vals[5])
			assert.Equal(t, 2.0, vals[104])
			assert.Equal(t, 4.0, vals[105])
			assert.Equal(t, 4.0, vals[154])
			assert.True(t, math.IsNaN(vals[155]))

			// variable step records with span 10
			vals, err = bw.Values("chr2L", 1005, 1025)
			require.NoError(t, err)
			assert.Equal(t, 1.5, vals[0])
			assert.Equal(t, 1.5, vals[4])
			assert.True(t, math.IsNaN(vals[5]))
			assert.Equal(t, 3.0, vals[15])

			// fixed step records: step 100, span 50
			vals, err = bw.Values("chrX", 0, 300)
			require.NoError(t, err)
			assert.Equal(t, 1.0, vals[0])
			assert.Equal(t, 1.0, vals[49])
			assert.True(t, math.IsNaN(vals[50]))
			assert.Equal(t, 2.0, vals[100])
			assert.Equal(t, 3.0, vals[249])
			assert.True(t, math.IsNaN(vals[250]))

			// region without data
			vals, err = bw.Values("chr2L", 5000, 5010)
			require.NoError(t, err)
			for _, v := range vals {
				assert.True(t, math.IsNaN(v))
			}
		})
	}
}

func TestBigWig_Errors(t *testing.T) {
	path := testBigWig(t, binary.LittleEndian, true)
	bw, err := OpenBigWig(path)
	require.NoError(t, err)
	defer bw.Close()

	_, err = bw.Values("chr3R", 0, 10)
	assert.ErrorIs(t, err, ErrUnknownChrom)

	_, err = bw.Values("chrX", -10, 10)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = bw.Values("chrX", 4990, 5001)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	length, ok := bw.ChromLength("chrX")
	assert.True(t, ok)
	assert.Equal(t, int64(5000), length)
}

func TestOpenBigWig_NotBigWig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("chr1\t0\t10\t1.0\n"), 0644))

	_, err := OpenBigWig(path)
	assert.Error(t, err)

	isBW, err := IsBigWigFile(path)
	require.NoError(t, err)
	assert.False(t, isBW)
}

func TestOpen_DetectsFormat(t *testing.T) {
	bwPath := testBigWig(t, binary.LittleEndian, true)
	tr, err := Open(bwPath)
	require.NoError(t, err)
	assert.IsType(t, &BigWig{}, tr)
	require.NoError(t, tr.Close())

	bgPath := filepath.Join(t.TempDir(), "signal.bedGraph")
	require.NoError(t, os.WriteFile(bgPath, []byte("chr2L\t0\t100\t1.0\n"), 0644))
	tr, err = Open(bgPath)
	require.NoError(t, err)
	assert.IsType(t, &BedGraph{}, tr)
	require.NoError(t, tr.Close())

	_, err = Open(filepath.Join(t.TempDir(), "missing.bw"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
