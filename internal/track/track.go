// Package track provides read access to per-base signal tracks such as
// bigWig and bedGraph files.
package track

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	// ErrUnknownChrom is returned when a track has no data for a chromosome.
	ErrUnknownChrom = errors.New("unknown chromosome")
	// ErrOutOfBounds is returned for queries outside [0, chromosome length).
	ErrOutOfBounds = errors.New("region out of bounds")
)

// Unbounded is the length reported for chromosomes whose size a track
// does not record.
const Unbounded int64 = math.MaxInt64

// Track is a per-base signal source.
type Track interface {
	// Values returns end-start values for [start, end). Positions without
	// data are NaN.
	Values(chrom string, start, end int64) ([]float64, error)
	// ChromLength returns the length of a chromosome known to the track,
	// or Unbounded if the track has data for it but no recorded size.
	ChromLength(chrom string) (int64, bool)
	Close() error
}

// Opener opens a track by path.
type Opener func(path string) (Track, error)

// Open opens a bigWig or bedGraph track, detected from the file magic.
func Open(path string) (Track, error) {
	return NewOpener(nil)(path)
}

// NewOpener returns an Opener that bounds bedGraph chromosomes to sizes.
// bigWig files carry their own sizes. A nil map leaves bedGraphs Unbounded.
func NewOpener(sizes map[string]int64) Opener {
	return func(path string) (Track, error) {
		isBigWig, err := IsBigWigFile(path)
		if err != nil {
			return nil, err
		}
		if isBigWig {
			return OpenBigWig(path)
		}
		bg, err := OpenBedGraph(path)
		if err != nil {
			return nil, err
		}
		if sizes != nil {
			if err := bg.SetChromSizes(sizes); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		return bg, nil
	}
}

// IsBigWigFile reports whether the file starts with the bigWig magic number
// in either byte order.
func IsBigWigFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open track: %w", err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(bufio.NewReader(f), magic[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("read track magic: %w", err)
	}
	_, ok := byteOrder(magic[:])
	return ok, nil
}

// checkRange validates a query against a chromosome length.
func checkRange(chrom string, start, end, length int64) error {
	if start < 0 || end > length || start > end {
		return fmt.Errorf("%s:%d-%d (length %d): %w", chrom, start, end, length, ErrOutOfBounds)
	}
	return nil
}

// nanSlice returns n NaN values.
func nanSlice(n int64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return values
}

// fill writes value into values for the overlap of [from, to) with the
// query [start, start+len(values)).
func fill(values []float64, start, from, to int64, value float64) {
	lo := max(from, start) - start
	hi := min(to, start+int64(len(values))) - start
	for i := lo; i < hi; i++ {
		values[i] = value
	}
}

