package track

import "fmt"

// Memory is an in-memory track holding dense per-base values.
type Memory struct {
	chroms map[string][]float64
	closed bool
}

// NewMemory creates an empty in-memory track.
func NewMemory() *Memory {
	return &Memory{chroms: make(map[string][]float64)}
}

// Set stores the dense values for a chromosome; its length is len(values).
func (m *Memory) Set(chrom string, values []float64) {
	m.chroms[chrom] = values
}

// Constant stores a chromosome of the given length where every base has value v.
func (m *Memory) Constant(chrom string, length int64, v float64) {
	values := make([]float64, length)
	for i := range values {
		values[i] = v
	}
	m.chroms[chrom] = values
}

// Values implements Track.
func (m *Memory) Values(chrom string, start, end int64) ([]float64, error) {
	if m.closed {
		return nil, fmt.Errorf("read %s: track is closed", chrom)
	}
	data, ok := m.chroms[chrom]
	if !ok {
		return nil, fmt.Errorf("%s: %w", chrom, ErrUnknownChrom)
	}
	if err := checkRange(chrom, start, end, int64(len(data))); err != nil {
		return nil, err
	}
	return append([]float64(nil), data[start:end]...), nil
}

// ChromLength implements Track.
func (m *Memory) ChromLength(chrom string) (int64, bool) {
	data, ok := m.chroms[chrom]
	return int64(len(data)), ok
}

// Close implements Track.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	return m.closed
}
