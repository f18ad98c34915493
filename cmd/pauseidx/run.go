package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/duckdb"
	"github.com/inodb/pauseidx/internal/output"
	"github.com/inodb/pauseidx/internal/pausing"
	"github.com/inodb/pauseidx/internal/track"
	"github.com/inodb/pauseidx/internal/window"
)

func newRunCmd(newLogger func() (*zap.Logger, error)) *cobra.Command {
	var (
		sampleArgs []string
		outputFile string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute pausing indices for one or more samples",
		Long: `Compute per-gene promoter, gene-body and across-gene signal means for every
sample, derive the pausing index and write one merged table with a row per
gene present in all samples.`,
		Example: `  pauseidx run --annotation dmel.gff3.gz --sample dark=dark.bw --sample light=light.bw -o pi.csv
  pauseidx run --annotation dmel.gff3 --sample nelf=nelf.bedGraph --antibody NELF -o pi.tsv
  pauseidx run --store ~/.pauseidx/results.duckdb   # samples and annotation from config`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, map[string]string{
				"annotation": "annotation.path",
				"antibody":   "gating.antibody",
				"workers":     "workers",
				"store":       "store",
				"chrom-sizes": "tracks.chrom_sizes",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			samples, err := resolveSamples(sampleArgs)
			if err != nil {
				return err
			}
			return runPausing(cmd, logger, samples, outputFile, strict)
		},
	}

	flags := cmd.Flags()
	flags.String("annotation", "", "GFF3 gene annotation (.gz supported)")
	flags.StringArrayVar(&sampleArgs, "sample", nil, "Sample as NAME=PATH to a bigWig or bedGraph track (repeatable)")
	flags.String("antibody", pausing.DefaultAntibody, "Antibody of the samples, selects the gating threshold (default: none, no gating)")
	flags.StringVarP(&outputFile, "output", "o", "", "Output table (default: stdout; .tsv/.txt for tab-separated, .gz to compress)")
	flags.Int("workers", 1, "Number of samples processed concurrently (0 = all CPUs)")
	flags.String("store", "", "DuckDB file caching per-sample results")
	flags.String("chrom-sizes", "", "chrom.sizes file bounding bedGraph chromosomes")
	flags.BoolVar(&strict, "strict", false, "Fail if any sample fails")

	return cmd
}

// resolveSamples parses NAME=PATH flags, falling back to the samples
// listed in the config file.
func resolveSamples(args []string) ([]pausing.Sample, error) {
	var samples []pausing.Sample
	for _, a := range args {
		s, err := parseSampleArg(a)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		var err error
		if samples, err = configSamples(); err != nil {
			return nil, err
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: at least one --sample NAME=PATH is required", errUsage)
	}
	return samples, nil
}

func parseSampleArg(arg string) (pausing.Sample, error) {
	name, path, ok := strings.Cut(arg, "=")
	if !ok || name == "" || path == "" {
		return pausing.Sample{}, fmt.Errorf("%w: invalid --sample %q, expected NAME=PATH", errUsage, arg)
	}
	return pausing.Sample{Name: name, Path: path}, nil
}

func runPausing(cmd *cobra.Command, logger *zap.Logger, samples []pausing.Sample, outputFile string, strict bool) error {
	annPath := viper.GetString("annotation.path")
	if annPath == "" {
		return fmt.Errorf("%w: --annotation is required", errUsage)
	}

	var store *duckdb.Store
	if storePath := viper.GetString("store"); storePath != "" {
		var err error
		if store, err = duckdb.Open(storePath); err != nil {
			return err
		}
		defer store.Close()
	}

	genes, err := loadGenes(logger, annPath, annotationOptions(), geneCacheDir())
	if err != nil {
		return err
	}

	antibody := viper.GetString("gating.antibody")
	threshold := thresholds().Threshold(antibody)
	logger.Info("gating",
		zap.String("antibody", antibody),
		zap.Float64("threshold", threshold))

	opener, sizes, err := trackOpener()
	if err != nil {
		return err
	}
	params := windowParams()
	loader := pausing.NewLoader(params, opener)
	loader.SetLogger(logger)

	base := duckdb.SampleKey{Threshold: threshold, Params: params, ChromSizes: sizes}
	outcomes := computeSamples(logger, loader, store, samples, genes, base, viper.GetInt("workers"))

	failures := pausing.Failures(outcomes)
	if errors.Is(failures, window.ErrInvalidStrand) {
		return failures
	}
	if strict && failures != nil {
		return fmt.Errorf("sample failures: %w", failures)
	}
	results := pausing.Succeeded(outcomes)
	if len(results) == 0 {
		return fmt.Errorf("no sample succeeded: %w", failures)
	}

	table, err := pausing.Merge(results)
	if err != nil {
		return err
	}
	logger.Info("merged samples",
		zap.Int("samples", len(table.Samples)),
		zap.Int("genes", table.Len()))

	return writeTable(cmd, table, outputFile, viper.GetString("output.na"))
}

// trackOpener bounds bedGraph chromosomes when a chrom.sizes file is
// configured. The returned Source identifies that file for the store.
func trackOpener() (track.Opener, duckdb.Source, error) {
	path := viper.GetString("tracks.chrom_sizes")
	if path == "" {
		return track.Open, duckdb.Source{}, nil
	}
	src, err := duckdb.StatSource(path)
	if err != nil {
		return nil, duckdb.Source{}, fmt.Errorf("chrom sizes: %w", err)
	}
	sizes, err := track.ReadChromSizes(path)
	if err != nil {
		return nil, duckdb.Source{}, err
	}
	return track.NewOpener(sizes), src, nil
}

// computeSamples returns one outcome per sample in input order. Samples
// with a current entry in the store are not recomputed; fresh results are
// written back to it. base carries the threshold and window parameters
// shared by all samples.
func computeSamples(logger *zap.Logger, loader *pausing.Loader, store *duckdb.Store,
	samples []pausing.Sample, genes []annotation.Gene, base duckdb.SampleKey, workers int) []pausing.WorkResult {
	if store == nil {
		return loader.RunSamples(samples, genes, base.Threshold, workers)
	}

	outcomes := make([]pausing.WorkResult, len(samples))
	keys := make([]duckdb.SampleKey, len(samples))
	var pending []int

	for i, s := range samples {
		outcomes[i] = pausing.WorkResult{Seq: i, Sample: s}
		src, err := duckdb.StatSource(s.Path)
		if err != nil {
			pending = append(pending, i)
			continue
		}
		keys[i] = base
		keys[i].Name = s.Name
		keys[i].Track = src

		res, err := store.LookupSample(keys[i], genes)
		if err != nil {
			logger.Warn("store lookup failed", zap.String("sample", s.Name), zap.Error(err))
		}
		if res == nil {
			pending = append(pending, i)
			continue
		}
		logger.Info("using stored sample", zap.String("sample", s.Name))
		outcomes[i].Result = res
	}

	todo := make([]pausing.Sample, len(pending))
	for j, i := range pending {
		todo[j] = samples[i]
	}
	for j, o := range loader.RunSamples(todo, genes, base.Threshold, workers) {
		i := pending[j]
		outcomes[i].Result = o.Result
		outcomes[i].Err = o.Err
		if o.Err != nil || keys[i].Name == "" {
			continue
		}
		if err := store.WriteSample(keys[i], o.Result); err != nil {
			logger.Warn("store write failed", zap.String("sample", o.Sample.Name), zap.Error(err))
		}
	}
	return outcomes
}

// geneCacheDir places the gene cache next to the result store. Without a
// store genes are parsed on every run.
func geneCacheDir() string {
	storePath := viper.GetString("store")
	if storePath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(storePath), "genes")
}

func loadGenes(logger *zap.Logger, path string, opts annotation.Options, cacheDir string) ([]annotation.Gene, error) {
	var gc *duckdb.GeneCache
	src, srcErr := duckdb.StatSource(path)
	if cacheDir != "" && srcErr == nil {
		gc = duckdb.NewGeneCache(cacheDir)
		if gc.Valid(src, opts) {
			genes, err := gc.Load()
			if err == nil {
				logger.Info("loaded genes from cache", zap.Int("genes", len(genes)))
				return genes, nil
			}
			logger.Warn("gene cache unreadable, reparsing", zap.Error(err))
		}
	}

	genes, stats, err := annotation.Load(path, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded annotation",
		zap.String("path", path),
		zap.Int("lines", stats.Lines),
		zap.Int("genes", stats.Genes),
		zap.Int("skipped", stats.Skipped()),
		zap.Int("other_feature", stats.OtherFeature),
		zap.Int("other_chrom", stats.OtherChrom),
		zap.Int("too_short", stats.TooShort),
		zap.Int("malformed", stats.Malformed),
		zap.Int("missing_id", stats.MissingID))

	if gc != nil {
		if err := gc.Write(genes, src, opts); err != nil {
			logger.Warn("gene cache write failed", zap.Error(err))
		}
	}
	return genes, nil
}

// writeTable writes the merged table to path, or stdout if path is empty
// or "-". Paths ending in .gz are gzip-compressed.
func writeTable(cmd *cobra.Command, table *pausing.MergedTable, path, na string) error {
	if path == "" || path == "-" {
		return output.NewTableWriter(cmd.OutOrStdout(), ",", na).WriteTable(table)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := output.NewTableWriter(w, output.DelimiterFor(path), na).WriteTable(table); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("write output: %w", err)
		}
	}
	return f.Close()
}
