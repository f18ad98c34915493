package duckdb

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inodb/pauseidx/internal/annotation"
)

// GeneCache manages gob-serialized annotation genes on disk:
//
//	{dir}/genes.gob       (genes in annotation order)
//	{dir}/genes.gob.meta  (annotation fingerprint and loader options)
type GeneCache struct {
	dir string
}

// NewGeneCache creates a gene cache for the given directory.
func NewGeneCache(dir string) *GeneCache {
	return &GeneCache{dir: dir}
}

func (gc *GeneCache) gobPath() string {
	return filepath.Join(gc.dir, "genes.gob")
}

func (gc *GeneCache) metaPath() string {
	return filepath.Join(gc.dir, "genes.gob.meta")
}

// Valid checks whether the cached genes were parsed from the current
// annotation file with the same options.
func (gc *GeneCache) Valid(src Source, opts annotation.Options) bool {
	meta, err := gc.readMeta()
	if err != nil {
		return false
	}
	for k, v := range gc.metaFor(src, opts) {
		if meta[k] != v {
			return false
		}
	}

	if _, err := os.Stat(gc.gobPath()); err != nil {
		return false
	}
	return true
}

// Load reads the cached genes.
func (gc *GeneCache) Load() ([]annotation.Gene, error) {
	f, err := os.Open(gc.gobPath())
	if err != nil {
		return nil, fmt.Errorf("open gene cache: %w", err)
	}
	defer f.Close()

	var genes []annotation.Gene
	if err := gob.NewDecoder(f).Decode(&genes); err != nil {
		return nil, fmt.Errorf("decode gene cache: %w", err)
	}
	return genes, nil
}

// Write serializes genes to disk and records the source fingerprint.
func (gc *GeneCache) Write(genes []annotation.Gene, src Source, opts annotation.Options) error {
	if err := os.MkdirAll(gc.dir, 0755); err != nil {
		return fmt.Errorf("create gene cache directory: %w", err)
	}

	f, err := os.Create(gc.gobPath())
	if err != nil {
		return fmt.Errorf("create gene cache: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(genes); err != nil {
		f.Close()
		os.Remove(gc.gobPath())
		return fmt.Errorf("encode gene cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close gene cache: %w", err)
	}

	return gc.writeMeta(src, opts)
}

// Clear removes the cached gene files. A cache that was never written is
// not an error.
func (gc *GeneCache) Clear() error {
	for _, path := range []string{gc.gobPath(), gc.metaPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear gene cache: %w", err)
		}
	}
	return nil
}

// metaFor is the metadata that must match for the cache to be valid.
func (gc *GeneCache) metaFor(src Source, opts annotation.Options) map[string]string {
	meta := src.metaFields("annotation")
	meta["options"] = optionsKey(opts)
	return meta
}

func (gc *GeneCache) writeMeta(src Source, opts annotation.Options) error {
	meta := gc.metaFor(src, opts)
	meta["created_at"] = time.Now().UTC().Format(time.RFC3339)

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, meta[k])
	}
	return os.WriteFile(gc.metaPath(), []byte(b.String()), 0644)
}

func (gc *GeneCache) readMeta() (map[string]string, error) {
	data, err := os.ReadFile(gc.metaPath())
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}

// optionsKey renders loader options on a single line.
func optionsKey(opts annotation.Options) string {
	return fmt.Sprintf("chroms=%s|feature=%s|min=%d|prefix=%s|id=%s",
		strings.Join(opts.Chromosomes, ","), opts.FeatureType, opts.MinLength,
		opts.ChromPrefix, opts.IDPattern)
}
