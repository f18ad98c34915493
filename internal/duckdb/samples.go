package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/pausing"
	"github.com/inodb/pauseidx/internal/window"
)

// SampleKey is everything a stored sample result depends on besides the
// gene list.
type SampleKey struct {
	Name      string
	Track     Source
	Threshold float64
	Params    window.Params

	// ChromSizes is the chrom.sizes file bounding bedGraph tracks, if any.
	ChromSizes Source
}

// WriteSample stores a sample result under key using the Appender API.
// Rows written earlier for the same sample name are replaced.
func (s *Store) WriteSample(key SampleKey, res *pausing.SampleResult) error {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "DELETE FROM sample_stats WHERE sample=?", key.Name); err != nil {
		return fmt.Errorf("clear sample %s: %w", key.Name, err)
	}
	if len(res.Rows) == 0 {
		return nil
	}

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "sample_stats")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for i, r := range res.Rows {
		var index driver.Value
		if r.Index.Valid {
			index = r.Index.Value
		}
		if err := appender.AppendRow(
			key.Name, key.Track.Path, key.Track.Size, key.Track.modNanos(), key.Threshold,
			key.Params.PromoterExt, key.Params.MinBodyLength, key.ChromSizes.key(), int64(i), r.Gene.ID, r.Gene.Chrom, r.Gene.Start, r.Gene.End, r.Gene.Strand,
			r.Short, r.MeanAcross, r.PromoterMean, r.GeneBodyMean, index,
		); err != nil {
			return fmt.Errorf("append sample row: %w", err)
		}
	}

	return appender.Flush()
}

// LookupSample returns the stored result for key if it covers exactly the
// given genes at the same coordinates. It returns nil when the sample must
// be recomputed.
func (s *Store) LookupSample(key SampleKey, genes []annotation.Gene) (*pausing.SampleResult, error) {
	rows, err := s.db.Query(`SELECT
		gene_id, chrom, start_pos, end_pos, strand, is_short,
		mean_rpkm, promoter_mean, gene_body_mean, promoter_index
		FROM sample_stats
		WHERE sample=? AND track_path=? AND track_size=? AND track_modtime=? AND threshold=?
			AND promoter_ext=? AND min_body_length=? AND chrom_sizes=?
		ORDER BY seq`,
		key.Name, key.Track.Path, key.Track.Size, key.Track.modNanos(), key.Threshold,
		key.Params.PromoterExt, key.Params.MinBodyLength, key.ChromSizes.key())
	if err != nil {
		return nil, fmt.Errorf("query sample: %w", err)
	}
	defer rows.Close()

	res := &pausing.SampleResult{Name: key.Name}
	for rows.Next() {
		var (
			r     pausing.Row
			index sql.NullFloat64
		)
		if err := rows.Scan(
			&r.Gene.ID, &r.Gene.Chrom, &r.Gene.Start, &r.Gene.End, &r.Gene.Strand, &r.Short,
			&r.MeanAcross, &r.PromoterMean, &r.GeneBodyMean, &index,
		); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		if index.Valid {
			r.Index = pausing.Value(index.Float64)
		} else {
			res.Suppressed++
		}
		if r.Short {
			res.Short++
		}
		res.Rows = append(res.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample rows: %w", err)
	}

	if len(res.Rows) != len(genes) {
		return nil, nil
	}
	for i := range genes {
		if res.Rows[i].Gene != genes[i] {
			return nil, nil
		}
	}
	return res, nil
}

// StoredSample summarizes the rows kept for one sample.
type StoredSample struct {
	Name      string
	TrackPath string
	Threshold float64
	Params    window.Params
	Genes     int
}

// Samples lists the stored samples by name.
func (s *Store) Samples() ([]StoredSample, error) {
	rows, err := s.db.Query(`SELECT sample, MIN(track_path), MIN(threshold),
		MIN(promoter_ext), MIN(min_body_length), COUNT(*)
		FROM sample_stats GROUP BY sample ORDER BY sample`)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []StoredSample
	for rows.Next() {
		var ss StoredSample
		if err := rows.Scan(&ss.Name, &ss.TrackPath, &ss.Threshold,
			&ss.Params.PromoterExt, &ss.Params.MinBodyLength, &ss.Genes); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, ss)
	}
	return samples, rows.Err()
}

// ClearSample removes the stored rows of one sample and reports how many
// were removed.
func (s *Store) ClearSample(name string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM sample_stats WHERE sample=?", name)
	if err != nil {
		return 0, fmt.Errorf("clear sample %s: %w", name, err)
	}
	return res.RowsAffected()
}

// ClearSamples removes all stored sample statistics.
func (s *Store) ClearSamples() error {
	if _, err := s.db.Exec("DELETE FROM sample_stats"); err != nil {
		return fmt.Errorf("clear samples: %w", err)
	}
	return nil
}
