package pausing

import (
	"math"
	"strconv"
	"strings"
)

// ZeroBodyDenominator replaces a gene-body mean of exactly zero.
const ZeroBodyDenominator = 1e-9

// Index returns promoterMean / geneBodyMean, dividing by
// ZeroBodyDenominator when the gene body has no signal.
func Index(promoterMean, geneBodyMean float64) float64 {
	if geneBodyMean != 0.0 {
		return promoterMean / geneBodyMean
	}
	return promoterMean / ZeroBodyDenominator
}

// Stat is a statistic that may be missing.
type Stat struct {
	Value float64
	Valid bool
}

// Value returns a present statistic.
func Value(v float64) Stat {
	return Stat{Value: v, Valid: true}
}

// Missing is the absent statistic.
var Missing = Stat{}

// Float returns the value, or NaN if the statistic is missing.
func (s Stat) Float() float64 {
	if !s.Valid {
		return math.NaN()
	}
	return s.Value
}

// Format renders the value with the shortest exact representation, or na
// if the statistic is missing.
func (s Stat) Format(na string) string {
	if !s.Valid {
		return na
	}
	return strconv.FormatFloat(s.Value, 'g', -1, 64)
}

// Gate suppresses the index when meanAcross is below threshold.
func Gate(index, meanAcross, threshold float64) Stat {
	if meanAcross < threshold {
		return Missing
	}
	return Value(index)
}

// SPT5 is the antibody with a default binding threshold.
const SPT5 = "SPT5"

// DefaultAntibody leaves samples ungated unless an antibody is named.
const DefaultAntibody = ""

// Thresholds maps antibody names to the minimum across-gene mean required
// to report a pausing index. Antibodies not listed use 0 (never gated).
type Thresholds map[string]float64

// DefaultThresholds returns the SPT5 binding threshold of 500.
func DefaultThresholds() Thresholds {
	return Thresholds{SPT5: 500}
}

// Threshold returns the gating threshold for an antibody. Names are
// matched case-insensitively.
func (t Thresholds) Threshold(antibody string) float64 {
	if v, ok := t[antibody]; ok {
		return v
	}
	for name, v := range t {
		if strings.EqualFold(name, antibody) {
			return v
		}
	}
	return 0
}
