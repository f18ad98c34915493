package annotation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrDuplicateGeneID is returned when two kept genes share an ID.
var ErrDuplicateGeneID = errors.New("duplicate gene ID")

// DefaultChromosomes are the major Drosophila melanogaster chromosomes.
var DefaultChromosomes = []string{"X", "Y", "2L", "2R", "3L", "3R", "4"}

// Options controls which annotation rows become genes.
type Options struct {
	Chromosomes []string // allowed source chromosome names
	FeatureType string   // feature type column value to keep
	MinLength   int64    // minimum end - start
	ChromPrefix string   // prepended to the source chromosome name
	IDPattern   string   // regexp with one capture group for the gene ID
}

// DefaultOptions returns the options used for the BDGP6 GFF3 release.
func DefaultOptions() Options {
	return Options{
		Chromosomes: append([]string(nil), DefaultChromosomes...),
		FeatureType: "gene",
		MinLength:   10,
		ChromPrefix: "chr",
		IDPattern:   `ID=gene:([^;]+)`,
	}
}

// LoadStats counts what happened to each line of an annotation file.
type LoadStats struct {
	Lines        int
	Comments     int
	Malformed    int
	OtherFeature int
	OtherChrom   int
	TooShort     int
	MissingID    int
	Genes        int
}

// Skipped returns the number of non-comment lines that did not produce a gene.
func (s LoadStats) Skipped() int {
	return s.Malformed + s.OtherFeature + s.OtherChrom + s.TooShort + s.MissingID
}

// Load reads genes from a GFF3 file. Files ending in .gz are decompressed.
func Load(path string, opts Options) ([]Gene, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("open annotation: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return Parse(reader, opts)
}

// Parse reads genes from GFF3 content in file order. Comment, malformed and
// filtered lines are skipped and counted in the returned stats. A gene ID
// kept twice is an error.
func Parse(reader io.Reader, opts Options) ([]Gene, LoadStats, error) {
	var stats LoadStats

	idPattern, err := regexp.Compile(opts.IDPattern)
	if err != nil {
		return nil, stats, fmt.Errorf("compile ID pattern: %w", err)
	}
	if idPattern.NumSubexp() < 1 {
		return nil, stats, fmt.Errorf("ID pattern %q has no capture group", opts.IDPattern)
	}

	allowed := make(map[string]bool, len(opts.Chromosomes))
	for _, c := range opts.Chromosomes {
		allowed[c] = true
	}

	scanner := bufio.NewScanner(reader)
	// Increase buffer size for long attribute columns
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var genes []Gene
	firstLine := make(map[string]int)
	for scanner.Scan() {
		stats.Lines++
		line := scanner.Text()

		if strings.HasPrefix(line, "#") || line == "" {
			stats.Comments++
			continue
		}

		feat, err := parseLine(line)
		if err != nil {
			stats.Malformed++
			continue
		}

		if !allowed[feat.chrom] {
			stats.OtherChrom++
			continue
		}
		if feat.end-feat.start < opts.MinLength {
			stats.TooShort++
			continue
		}
		if feat.featureType != opts.FeatureType {
			stats.OtherFeature++
			continue
		}

		m := idPattern.FindStringSubmatch(feat.attributes)
		if m == nil {
			stats.MissingID++
			continue
		}

		id := m[1]
		if prev, dup := firstLine[id]; dup {
			return nil, stats, fmt.Errorf("line %d: %w %s (first seen on line %d)",
				stats.Lines, ErrDuplicateGeneID, id, prev)
		}
		firstLine[id] = stats.Lines

		genes = append(genes, Gene{
			ID:     id,
			Chrom:  opts.ChromPrefix + feat.chrom,
			Start:  feat.start,
			End:    feat.end,
			Strand: feat.strand,
		})
		stats.Genes++
	}

	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("scan annotation: %w", err)
	}

	return genes, stats, nil
}

// gffFeature holds the columns of one GFF3 line that the loader needs.
type gffFeature struct {
	chrom       string
	featureType string
	start       int64
	end         int64
	strand      string
	attributes  string
}

// parseLine parses a single GFF3 line.
func parseLine(line string) (*gffFeature, error) {
	fields := strings.Split(strings.TrimSpace(line), "\t")
	if len(fields) < 9 {
		return nil, fmt.Errorf("invalid GFF line: expected 9 fields, got %d", len(fields))
	}

	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}

	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}

	return &gffFeature{
		chrom:       fields[0],
		featureType: fields[2],
		start:       start,
		end:         end,
		strand:      fields[6],
		attributes:  fields[8],
	}, nil
}
