// Package output provides table and BED writers for pausing index results.
package output

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/inodb/pauseidx/internal/pausing"
)

// DefaultNA marks missing values in written tables.
const DefaultNA = "NA"

// TableWriter writes a merged table as delimited text.
type TableWriter struct {
	w     *bufio.Writer
	delim string
	na    string
}

// NewTableWriter creates a writer using delim between fields and na for
// missing values.
func NewTableWriter(w io.Writer, delim, na string) *TableWriter {
	if na == "" {
		na = DefaultNA
	}
	return &TableWriter{
		w:     bufio.NewWriter(w),
		delim: delim,
		na:    na,
	}
}

// DelimiterFor picks the delimiter from the output file extension:
// tab for .tsv, .tab and .txt, comma otherwise.
func DelimiterFor(path string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".gz")))
	switch ext {
	case ".tsv", ".tab", ".txt":
		return "\t"
	}
	return ","
}

// WriteTable writes the header and every row of t, then flushes.
func (tw *TableWriter) WriteTable(t *pausing.MergedTable) error {
	if err := tw.writeRecord(t.Columns()); err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		if err := tw.writeRecord(t.Record(i, tw.na)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (tw *TableWriter) writeRecord(fields []string) error {
	_, err := tw.w.WriteString(strings.Join(fields, tw.delim) + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TableWriter) Flush() error {
	return tw.w.Flush()
}
