// Package annotation loads gene records from GFF3 genome annotations.
package annotation

// Gene is a single annotated gene. Coordinates are carried as they appear
// in the annotation file.
type Gene struct {
	ID     string // Gene identifier (e.g., FBgn0031208)
	Chrom  string // Normalized chromosome name (e.g., chr2L)
	Start  int64
	End    int64
	Strand string // "+" or "-"
}

// Length returns End - Start.
func (g *Gene) Length() int64 {
	return g.End - g.Start
}

// IsForwardStrand returns true if the gene is on the forward strand.
func (g *Gene) IsForwardStrand() bool {
	return g.Strand == "+"
}

// IsReverseStrand returns true if the gene is on the reverse strand.
func (g *Gene) IsReverseStrand() bool {
	return g.Strand == "-"
}
