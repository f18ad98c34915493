// Package pausing computes per-gene promoter and gene-body occupancy and the
// resulting pausing index for one or more signal tracks.
package pausing

import (
	"errors"
	"fmt"
	"math"

	"github.com/inodb/pauseidx/internal/track"
	"github.com/inodb/pauseidx/internal/window"
)

// ErrEmptyWindow is returned when averaging over a window without positions.
var ErrEmptyWindow = errors.New("empty window")

// MeanSignal returns the mean track value over w. Positions without data
// count as 0.
func MeanSignal(tr track.Track, w window.Window) (float64, error) {
	if w.Empty() {
		return 0, fmt.Errorf("%s: %w", w, ErrEmptyWindow)
	}

	values, err := tr.Values(w.Chrom, w.Start, w.End)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%s: %w", w, ErrEmptyWindow)
	}

	var sum float64
	for _, v := range values {
		if math.IsNaN(v) {
			v = 0
		}
		sum += v
	}
	return sum / float64(len(values)), nil
}
