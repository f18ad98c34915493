package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/pauseidx/internal/duckdb"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect or clear the result store",
		Long: `List the samples cached in the DuckDB result store or remove them. The store
path comes from --store or the "store" config key.`,
		Example: `  pauseidx store list --store ~/.pauseidx/results.duckdb
  pauseidx store clear dark                     # drop one sample
  pauseidx store clear                          # drop all samples and the gene cache`,
	}

	cmd.AddCommand(newStoreListCmd())
	cmd.AddCommand(newStoreClearCmd())

	return cmd
}

func newStoreListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List stored samples",
		Args:    cobra.NoArgs,
		PreRunE: bindStoreFlag,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			samples, err := store.Samples()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SAMPLE\tGENES\tTHRESHOLD\tPROMOTER_EXT\tMIN_BODY_LENGTH\tTRACK")
			for _, s := range samples {
				fmt.Fprintf(tw, "%s\t%d\t%g\t%d\t%d\t%s\n", s.Name, s.Genes, s.Threshold,
					s.Params.PromoterExt, s.Params.MinBodyLength, s.TrackPath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("store", "", "DuckDB file caching per-sample results")
	return cmd
}

func newStoreClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clear [sample...]",
		Short:   "Remove stored samples, or everything if none are named",
		PreRunE: bindStoreFlag,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				if err := store.ClearSamples(); err != nil {
					return err
				}
				if err := duckdb.NewGeneCache(geneCacheDir()).Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all samples and the gene cache")
				return nil
			}

			for _, name := range args {
				n, err := store.ClearSample(name)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not stored\n", name)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d genes\n", name, n)
			}
			return nil
		},
	}
	cmd.Flags().String("store", "", "DuckDB file caching per-sample results")
	return cmd
}

func bindStoreFlag(cmd *cobra.Command, args []string) error {
	return bindFlags(cmd, map[string]string{"store": "store"})
}

func openStore() (*duckdb.Store, error) {
	path := viper.GetString("store")
	if path == "" {
		return nil, fmt.Errorf("%w: --store is required", errUsage)
	}
	return duckdb.Open(path)
}
