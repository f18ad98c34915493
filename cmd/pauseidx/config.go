package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/pauseidx/internal/annotation"
	"github.com/inodb/pauseidx/internal/output"
	"github.com/inodb/pauseidx/internal/pausing"
	"github.com/inodb/pauseidx/internal/window"
)

const configName = ".pauseidx"

// sampleConfig is one entry of the samples list in the config file.
type sampleConfig struct {
	Name string
	Path string
}

func setDefaults() {
	opts := annotation.DefaultOptions()
	params := window.DefaultParams()

	viper.SetDefault("annotation.chromosomes", opts.Chromosomes)
	viper.SetDefault("annotation.min_length", opts.MinLength)
	viper.SetDefault("annotation.chrom_prefix", opts.ChromPrefix)
	viper.SetDefault("windows.promoter_ext", params.PromoterExt)
	viper.SetDefault("windows.min_body_length", params.MinBodyLength)
	viper.SetDefault("gating.antibody", pausing.DefaultAntibody)
	viper.SetDefault("gating.thresholds", map[string]any{
		strings.ToLower(pausing.SPT5): pausing.DefaultThresholds().Threshold(pausing.SPT5),
	})
	viper.SetDefault("tracks.chrom_sizes", "")
	viper.SetDefault("output.na", output.DefaultNA)
	viper.SetDefault("workers", 1)
}

// initConfig reads the config file and PAUSEIDX_* environment variables.
// A missing default config file is not an error.
func initConfig(cfgFile string) error {
	setDefaults()
	viper.SetEnvPrefix("PAUSEIDX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindFlags binds flags of the executing command to config keys. Binding
// at execution time keeps commands sharing a key from overriding each other.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func annotationOptions() annotation.Options {
	opts := annotation.DefaultOptions()
	opts.Chromosomes = viper.GetStringSlice("annotation.chromosomes")
	opts.MinLength = viper.GetInt64("annotation.min_length")
	opts.ChromPrefix = viper.GetString("annotation.chrom_prefix")
	return opts
}

func windowParams() window.Params {
	return window.Params{
		PromoterExt:   viper.GetInt64("windows.promoter_ext"),
		MinBodyLength: viper.GetInt64("windows.min_body_length"),
	}
}

// thresholds merges the configured gating thresholds over the defaults.
func thresholds() pausing.Thresholds {
	th := pausing.DefaultThresholds()
	for name := range viper.GetStringMap("gating.thresholds") {
		for existing := range th {
			if strings.EqualFold(existing, name) {
				delete(th, existing)
			}
		}
		th[name] = viper.GetFloat64("gating.thresholds." + name)
	}
	return th
}

func configSamples() ([]pausing.Sample, error) {
	var entries []sampleConfig
	if err := viper.UnmarshalKey("samples", &entries); err != nil {
		return nil, fmt.Errorf("parse samples from config: %w", err)
	}
	samples := make([]pausing.Sample, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.Path == "" {
			return nil, fmt.Errorf("%w: config sample needs name and path", errUsage)
		}
		samples = append(samples, pausing.Sample{Name: e.Name, Path: e.Path})
	}
	return samples, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pauseidx configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.pauseidx.yaml.",
		Example: `  pauseidx config                               # show all config
  pauseidx config set gating.antibody NELF      # gate on another antibody
  pauseidx config set gating.thresholds.nelf 200
  pauseidx config get windows.promoter_ext      # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, args[0])
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func runConfigSet(cmd *cobra.Command, key, value string) error {
	// Parse boolean-like and numeric values
	switch value {
	case "true", "yes", "on":
		viper.Set(key, true)
	case "false", "no", "off":
		viper.Set(key, false)
	default:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			viper.Set(key, n)
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			viper.Set(key, f)
		} else {
			viper.Set(key, value)
		}
	}

	// Ensure config file exists
	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, configName+".yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, cfgFile)
	return nil
}

func runConfigGet(cmd *cobra.Command, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}
