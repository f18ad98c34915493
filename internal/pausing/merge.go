package pausing

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/inodb/pauseidx/internal/annotation"
)

// ErrNoSamples is returned when there is nothing to merge.
var ErrNoSamples = errors.New("no sample results to merge")

// MetadataColumns are the gene columns shared by all samples.
var MetadataColumns = []string{"gene_id", "chrom", "start", "end", "length", "strand"}

// StatColumnSuffixes name the per-sample columns, prefixed by the sample name.
var StatColumnSuffixes = []string{"_mean_rpkm", "_promoter_mean", "_gene_body_mean", "_promoter_index"}

// MergedTable joins sample results on gene ID. Stats[i][j] holds the
// statistics of Genes[i] in Samples[j].
type MergedTable struct {
	Samples []string
	Genes   []annotation.Gene
	Stats   [][]Stats
}

// Merge inner-joins sample results on gene ID. Genes keep the order of the
// first sample; genes absent from any sample are dropped.
func Merge(results []*SampleResult) (*MergedTable, error) {
	if len(results) == 0 {
		return nil, ErrNoSamples
	}

	seenNames := make(map[string]bool, len(results))
	byID := make([]map[string]int, len(results))
	for j, r := range results {
		if seenNames[r.Name] {
			return nil, fmt.Errorf("duplicate sample name %q", r.Name)
		}
		seenNames[r.Name] = true

		ids := make(map[string]int, len(r.Rows))
		for i, row := range r.Rows {
			if _, dup := ids[row.Gene.ID]; dup {
				return nil, fmt.Errorf("sample %s: duplicate gene ID %q", r.Name, row.Gene.ID)
			}
			ids[row.Gene.ID] = i
		}
		byID[j] = ids
	}

	t := &MergedTable{Samples: make([]string, len(results))}
	for j, r := range results {
		t.Samples[j] = r.Name
	}

	for _, row := range results[0].Rows {
		stats := make([]Stats, len(results))
		inAll := true
		for j, r := range results {
			i, ok := byID[j][row.Gene.ID]
			if !ok {
				inAll = false
				break
			}
			stats[j] = r.Rows[i].Stats
		}
		if !inAll {
			continue
		}
		t.Genes = append(t.Genes, row.Gene)
		t.Stats = append(t.Stats, stats)
	}

	return t, nil
}

// Columns returns the header: metadata columns, then four statistic
// columns per sample in sample order.
func (t *MergedTable) Columns() []string {
	cols := append([]string(nil), MetadataColumns...)
	for _, name := range t.Samples {
		for _, suffix := range StatColumnSuffixes {
			cols = append(cols, name+suffix)
		}
	}
	return cols
}

// Len returns the number of genes in the table.
func (t *MergedTable) Len() int {
	return len(t.Genes)
}

// Record formats row i as strings matching Columns. Missing statistics are
// written as na.
func (t *MergedTable) Record(i int, na string) []string {
	g := t.Genes[i]
	rec := make([]string, 0, len(MetadataColumns)+len(StatColumnSuffixes)*len(t.Samples))
	rec = append(rec,
		g.ID,
		g.Chrom,
		strconv.FormatInt(g.Start, 10),
		strconv.FormatInt(g.End, 10),
		strconv.FormatInt(g.Length(), 10),
		g.Strand,
	)
	for _, s := range t.Stats[i] {
		rec = append(rec,
			Value(s.MeanAcross).Format(na),
			Value(s.PromoterMean).Format(na),
			Value(s.GeneBodyMean).Format(na),
			s.Index.Format(na),
		)
	}
	return rec
}
