package output

import (
	"bufio"
	"fmt"
	"io"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/window"
)

// BedWriter writes gene windows as BED6 records named gene_id:kind.
type BedWriter struct {
	w *bufio.Writer
}

// NewBedWriter creates a new BED writer.
func NewBedWriter(w io.Writer) *BedWriter {
	return &BedWriter{w: bufio.NewWriter(w)}
}

// Write writes every defined window of a gene.
func (bw *BedWriter) Write(g *annotation.Gene, s window.Set) error {
	for _, nw := range s.All() {
		if _, err := fmt.Fprintf(bw.w, "%s\t%d\t%d\t%s:%s\t0\t%s\n",
			nw.Chrom, nw.Start, nw.End, g.ID, nw.Kind, g.Strand); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (bw *BedWriter) Flush() error {
	return bw.w.Flush()
}
