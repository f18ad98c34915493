package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/output"
	"github.com/inodb/pauseidx/internal/window"
)

func newWindowsCmd(newLogger func() (*zap.Logger, error)) *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:     "windows",
		Short:   "Write the promoter and gene-body windows of every gene as BED",
		Example: `  pauseidx windows --annotation dmel.gff3.gz -o windows.bed`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, map[string]string{"annotation": "annotation.path"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			annPath := viper.GetString("annotation.path")
			if annPath == "" {
				return fmt.Errorf("%w: --annotation is required", errUsage)
			}
			genes, err := loadGenes(logger, annPath, annotationOptions(), "")
			if err != nil {
				return err
			}
			return writeWindows(cmd, genes, outputFile)
		},
	}

	cmd.Flags().String("annotation", "", "GFF3 gene annotation (.gz supported)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output BED file (default: stdout)")

	return cmd
}

type windowSet struct {
	gene *annotation.Gene
	set  window.Set
}

// writeWindows builds all windows before creating the output so an
// invalid strand leaves no partial file behind.
func writeWindows(cmd *cobra.Command, genes []annotation.Gene, path string) (err error) {
	params := windowParams()
	sets := make([]windowSet, 0, len(genes))
	for i := range genes {
		s, berr := params.Build(&genes[i])
		if berr != nil {
			return berr
		}
		sets = append(sets, windowSet{gene: &genes[i], set: s})
	}

	var w io.Writer = cmd.OutOrStdout()
	if path != "" && path != "-" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("create output: %w", cerr)
		}
		w = f
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
	}

	bw := output.NewBedWriter(w)
	for _, ws := range sets {
		if err = bw.Write(ws.gene, ws.set); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
