// Package duckdb caches pausing results between runs.
// Parsed annotations are cached as gob files (fast, pure Go).
// Per-sample statistics are stored in DuckDB (queryable, keyed by track
// fingerprint, threshold and window parameters).
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for caching sample statistics.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates tables if they don't exist. A NULL promoter_index
// marks a gated gene.
func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sample_stats (
		sample VARCHAR,
		track_path VARCHAR,
		track_size BIGINT,
		track_modtime BIGINT,
		threshold DOUBLE,
		promoter_ext BIGINT,
		min_body_length BIGINT,
		chrom_sizes VARCHAR,
		seq BIGINT,
		gene_id VARCHAR,
		chrom VARCHAR,
		start_pos BIGINT,
		end_pos BIGINT,
		strand VARCHAR,
		is_short BOOLEAN,
		mean_rpkm DOUBLE,
		promoter_mean DOUBLE,
		gene_body_mean DOUBLE,
		promoter_index DOUBLE,
		PRIMARY KEY (sample, gene_id)
	)`)
	return err
}
