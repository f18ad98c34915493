package track

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// BedGraph is a track loaded fully into memory from a bedGraph file.
// bedGraph carries no chromosome lengths, so chromosomes are Unbounded
// unless sizes are supplied with SetChromSizes. Positions past the last
// record read as NaN.
type BedGraph struct {
	path   string
	chroms map[string]*intervalIndex
	sizes  map[string]int64
}

// OpenBedGraph reads a bedGraph file. Files ending in .gz are decompressed.
func OpenBedGraph(path string) (*BedGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bedGraph: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	bg, err := ParseBedGraph(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bg.path = path
	return bg, nil
}

// ParseBedGraph reads bedGraph records. Header lines (track, browser, #)
// are skipped; any other malformed line is an error.
func ParseBedGraph(reader io.Reader) (*BedGraph, error) {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	byChrom := make(map[string][]interval)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", lineNum, len(fields))
		}

		start, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse start: %w", lineNum, err)
		}
		end, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse end: %w", lineNum, err)
		}
		if start < 0 || end < start {
			return nil, fmt.Errorf("line %d: invalid interval %d-%d", lineNum, start, end)
		}
		value, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value: %w", lineNum, err)
		}

		byChrom[fields[0]] = append(byChrom[fields[0]], interval{start: start, end: end, value: value})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan bedGraph: %w", err)
	}

	bg := &BedGraph{chroms: make(map[string]*intervalIndex, len(byChrom))}
	for chrom, intervals := range byChrom {
		bg.chroms[chrom] = buildIntervalIndex(intervals)
	}
	return bg, nil
}

// Values implements Track.
func (bg *BedGraph) Values(chrom string, start, end int64) ([]float64, error) {
	idx, ok := bg.chroms[chrom]
	if !ok {
		return nil, fmt.Errorf("%s: %w", chrom, ErrUnknownChrom)
	}
	length, _ := bg.ChromLength(chrom)
	if err := checkRange(chrom, start, end, length); err != nil {
		return nil, err
	}

	values := nanSlice(end - start)
	idx.overlaps(start, end, func(iv interval) {
		fill(values, start, iv.start, iv.end, iv.value)
	})
	return values, nil
}

// ChromLength implements Track. Without chromosome sizes a covered
// chromosome is Unbounded.
func (bg *BedGraph) ChromLength(chrom string) (int64, bool) {
	if _, ok := bg.chroms[chrom]; !ok {
		return 0, false
	}
	if size, ok := bg.sizes[chrom]; ok {
		return size, true
	}
	return Unbounded, true
}

// SetChromSizes bounds chromosomes to known lengths. Records reaching past
// a supplied size are an error.
func (bg *BedGraph) SetChromSizes(sizes map[string]int64) error {
	for chrom, idx := range bg.chroms {
		size, ok := sizes[chrom]
		if ok && idx.maxEndpoint() > size {
			return fmt.Errorf("%s: records end at %d past chromosome size %d: %w",
				chrom, idx.maxEndpoint(), size, ErrOutOfBounds)
		}
	}
	bg.sizes = sizes
	return nil
}

// ReadChromSizes reads a two-column chrom.sizes file (name, length).
func ReadChromSizes(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chrom sizes: %w", err)
	}
	defer f.Close()

	sizes := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s line %d: expected chromosome and length", path, lineNum)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%s line %d: invalid length %q", path, lineNum, fields[1])
		}
		sizes[fields[0]] = size
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan chrom sizes: %w", err)
	}
	return sizes, nil
}

// Close implements Track. The data is held in memory so there is nothing
// to release.
func (bg *BedGraph) Close() error {
	bg.chroms = nil
	return nil
}
