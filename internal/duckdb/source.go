package duckdb

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Source identifies an input file by path, size and modification time.
// Anything derived from the file goes stale when its Source changes.
type Source struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatSource describes the current state of a file on disk.
func StatSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Source{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// modNanos is the modification time as stored in sample_stats.
func (s Source) modNanos() int64 {
	return s.ModTime.UnixNano()
}

// metaFields renders the source for a key=value metadata file under the
// given key prefix.
func (s Source) metaFields(prefix string) map[string]string {
	return map[string]string{
		prefix + "_path":    s.Path,
		prefix + "_size":    strconv.FormatInt(s.Size, 10),
		prefix + "_modtime": s.ModTime.UTC().Format(time.RFC3339Nano),
	}
}

// key renders the source on one line, or "" for the zero Source.
func (s Source) key() string {
	if s == (Source{}) {
		return ""
	}
	return fmt.Sprintf("%s|%d|%d", s.Path, s.Size, s.modNanos())
}
