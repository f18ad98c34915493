// Package window derives the strand-aware promoter and gene-body windows
// used for pausing index calculation.
package window

import (
	"errors"
	"fmt"

	"github.com/inodb/pauseidx/internal/annotation"
)

// ErrInvalidStrand is returned for genes whose strand is neither "+" nor "-".
var ErrInvalidStrand = errors.New("invalid strand")

// Kind names a window type.
type Kind string

const (
	KindAcross   Kind = "across"
	KindPromoter Kind = "promoter"
	KindGeneBody Kind = "gene_body"
)

// Window is a half-open interval [Start, End) on a chromosome.
// Start <= End always holds.
type Window struct {
	Chrom string
	Start int64
	End   int64
}

// New returns the window spanning the two bounds in either order.
func New(chrom string, a, b int64) Window {
	return Window{Chrom: chrom, Start: min(a, b), End: max(a, b)}
}

// Len returns the number of positions covered by the window.
func (w Window) Len() int64 {
	return w.End - w.Start
}

// Empty returns true if the window covers no positions.
func (w Window) Empty() bool {
	return w.Start == w.End
}

// Clamp intersects the window with [lo, hi). A window lying entirely
// outside the range collapses to an empty window at the nearest bound.
func (w Window) Clamp(lo, hi int64) Window {
	start := min(max(w.Start, lo), hi)
	end := max(min(w.End, hi), start)
	return Window{Chrom: w.Chrom, Start: start, End: end}
}

func (w Window) String() string {
	return fmt.Sprintf("%s:%d-%d", w.Chrom, w.Start, w.End)
}

// Set holds the windows derived for one gene. Promoter and GeneBody are
// only meaningful when HasBody is true.
type Set struct {
	Across   Window
	Promoter Window
	GeneBody Window
	HasBody  bool
}

// Params configures window construction.
type Params struct {
	PromoterExt   int64 // extension around the TSS in bp
	MinBodyLength int64 // genes must be strictly longer to get promoter/body windows
}

// DefaultParams returns the 250 bp promoter extension and 800 bp
// gene-body cutoff.
func DefaultParams() Params {
	return Params{PromoterExt: 250, MinBodyLength: 800}
}

// Build computes the windows for a gene.
func (p Params) Build(g *annotation.Gene) (Set, error) {
	var s Set
	ext := p.PromoterExt

	switch {
	case g.IsForwardStrand():
		s.Across = New(g.Chrom, g.Start-ext, g.End)
	case g.IsReverseStrand():
		s.Across = New(g.Chrom, g.Start, g.End+ext)
	default:
		return Set{}, fmt.Errorf("gene %s at %s:%d-%d: %w %q",
			g.ID, g.Chrom, g.Start, g.End, ErrInvalidStrand, g.Strand)
	}

	if g.Length() <= p.MinBodyLength {
		return s, nil
	}

	s.HasBody = true
	if g.IsForwardStrand() {
		s.Promoter = New(g.Chrom, g.Start-ext, g.Start+ext)
		s.GeneBody = New(g.Chrom, g.Start+ext, g.End)
	} else {
		s.Promoter = New(g.Chrom, g.End+ext, g.End-ext)
		s.GeneBody = New(g.Chrom, g.Start, g.End-ext)
	}

	return s, nil
}

// Named pairs a window with its kind.
type Named struct {
	Kind Kind
	Window
}

// All returns the defined windows of the set in across, promoter,
// gene body order.
func (s Set) All() []Named {
	if !s.HasBody {
		return []Named{{KindAcross, s.Across}}
	}
	return []Named{
		{KindAcross, s.Across},
		{KindPromoter, s.Promoter},
		{KindGeneBody, s.GeneBody},
	}
}
