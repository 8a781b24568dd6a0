// Package cmd implements the tsprep CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/app"
	"github.com/derickschaefer/tsprep/internal/config"
	"github.com/derickschaefer/tsprep/internal/pipeline"
)

// globalFlags holds the persistent flags that are not configuration keys.
// Flags that are (format, db, timeout, ...) are bound to viper in buildDeps.
var globalFlags struct {
	ConfigPath string
	Out        string
	NoColor    bool
	Save       bool
	Quiet      bool
	Verbose    bool
	Debug      bool
}

// flagKeys maps persistent flag names to the config keys they override.
var flagKeys = map[string]string{
	"format":      config.KeyFormat,
	"db":          config.KeyDBPath,
	"timeout":     config.KeyTimeout,
	"concurrency": config.KeyConcurrency,
	"rate":        config.KeyRate,
	"color":       config.KeyColor,
	"log-level":   config.KeyLogLevel,
	"missing":     config.KeyMissing,
}

// rootCmd is the base command. Running `tsprep` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "tsprep",
	Short: "tsprep — time-series preprocessing toolkit",
	Long: `tsprep smooths noisy sequential measurements, tests them for stationarity,
decomposes them into trend/seasonal/residual components, performs spectral
analysis and flags anomalous points.

Commands exchange observations as JSONL on stdin/stdout, so they compose
with pipes. On a terminal, results are printed as tables.

Quick start:
  tsprep import sensor.csv | tsprep store put sensor
  tsprep smooth ma --series sensor --window 7
  tsprep anomaly iqr --series sensor
  tsprep analyze adf --series sensor
  tsprep import sensor.csv | tsprep decompose --period 12`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps(cmd *cobra.Command) (*app.Deps, error) {
	v := config.New()
	pf := cmd.Root().PersistentFlags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}

	cfg, err := config.Load(v, globalFlags.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug
	if globalFlags.NoColor {
		cfg.Color = "never"
	}

	switch cfg.Color {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		color.NoColor = globalFlags.Out != "" || !pipeline.IsTTY()
	}

	deps := app.New(cfg, cmd.ErrOrStderr())
	if cfg.ConfigPath != "" {
		deps.Logger.Debug("config loaded", "path", cfg.ConfigPath)
	}
	return deps, nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.ConfigPath, "config", "",
		"config file (default: ./tsprep.yaml or $HOME/.tsprep/tsprep.yaml)")
	pf.String("format", config.DefaultFormat,
		"output format: auto|table|json|jsonl|csv|tsv|md|parquet")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.String("db", "",
		"workspace database path (default: $HOME/.tsprep/tsprep.db)")
	pf.Duration("timeout", config.DefaultTimeout,
		"HTTP request timeout for fetch (e.g. 30s, 2m)")
	pf.Int("concurrency", config.DefaultConcurrency,
		"max parallel downloads for fetch")
	pf.Float64("rate", config.DefaultRate,
		"max HTTP requests per second")
	pf.String("color", config.DefaultColor,
		"highlighting: auto|always|never")
	pf.BoolVar(&globalFlags.NoColor, "no-color", false,
		"disable highlighting (same as --color never)")
	pf.String("log-level", config.DefaultLogLevel,
		"log level on stderr: debug|info|warn|error")
	pf.String("missing", config.DefaultMissing,
		"missing-value policy before analysis: drop|fill|error")
	pf.BoolVar(&globalFlags.Save, "save", false,
		"record the result in the workspace (see 'tsprep runs')")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output on stderr")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"debug logging, including HTTP requests")
}
