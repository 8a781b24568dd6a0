package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/transform"
	"github.com/derickschaefer/tsprep/internal/util"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Pre-clean a series (reads JSONL from stdin)",
	Long: `Transform operators read JSONL observations and write JSONL to stdout, so
they chain in front of the analysis commands. Missing values pass through
untouched unless the operator removes or fills them.

Pipeline example:
  tsprep import sensor.csv | tsprep transform fill | tsprep smooth ma --window 7
  tsprep import daily.csv | tsprep transform resample --freq monthly | tsprep decompose --period 12
  tsprep store get sensor | tsprep transform diff | tsprep analyze adf`,
}

// runTransform is the shared RunE body of the transform commands: read raw
// observations, apply fn, write the transformed series.
func runTransform(cmd *cobra.Command, fn func([]model.Observation) ([]model.Observation, []string, error)) error {
	started := time.Now()
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	data, err := readInput(cmd, deps)
	if err != nil {
		return err
	}
	out, warnings, err := fn(data.Obs)
	if err != nil {
		return err
	}
	deps.Logger.Debug("transform applied", "op", cmd.Name(), "in", len(data.Obs), "out", len(out))

	result := newResult(model.KindSeriesData, commandPath(cmd),
		model.SeriesData{SeriesID: data.SeriesID, Source: data.Source, Obs: out}, len(out))
	result.Warnings = warnings
	return emit(cmd, deps, result, data.SeriesID, started)
}

// ─── drop ─────────────────────────────────────────────────────────────────────

var transformDropCmd = &cobra.Command{
	Use:     "drop",
	Short:   "Remove missing observations",
	Example: `  tsprep import sensor.csv | tsprep transform drop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, func(obs []model.Observation) ([]model.Observation, []string, error) {
			return transform.DropMissing(obs), nil, nil
		})
	},
}

// ─── fill ─────────────────────────────────────────────────────────────────────

var transformFillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Linearly interpolate missing observations",
	Long: `Interior gaps are interpolated linearly in time between the neighbouring
known values. Leading and trailing gaps take the nearest known value.`,
	Example: `  tsprep import sensor.csv | tsprep transform fill`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, func(obs []model.Observation) ([]model.Observation, []string, error) {
			out, err := transform.FillLinear(obs)
			return out, nil, err
		})
	},
}

// ─── diff ─────────────────────────────────────────────────────────────────────

var transformDiffOrder int

var transformDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "First or second difference: v[t] - v[t-1]",
	Example: `  tsprep import sensor.csv | tsprep transform diff
  tsprep store get sales | tsprep transform diff --order 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, func(obs []model.Observation) ([]model.Observation, []string, error) {
			out, err := transform.Diff(obs, transformDiffOrder)
			return out, nil, err
		})
	},
}

// ─── log ──────────────────────────────────────────────────────────────────────

var transformLogCmd = &cobra.Command{
	Use:     "log",
	Short:   "Natural log of each observation value",
	Example: `  tsprep import sales.csv | tsprep transform log | tsprep transform diff`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, func(obs []model.Observation) ([]model.Observation, []string, error) {
			out, warnings := transform.Log(obs)
			return out, warnings, nil
		})
	},
}

// ─── resample ─────────────────────────────────────────────────────────────────

var (
	transformResampleFreq   string
	transformResampleMethod string
)

var transformResampleCmd = &cobra.Command{
	Use:   "resample",
	Short: "Aggregate to a regular frequency: monthly, quarterly, or annual",
	Example: `  tsprep import daily.csv | tsprep transform resample --freq monthly --method mean
  tsprep store get sensor | tsprep transform resample --freq annual --method last`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, func(obs []model.Observation) ([]model.Observation, []string, error) {
			out, err := transform.Resample(obs,
				transform.ResampleFreq(transformResampleFreq),
				transform.ResampleMethod(transformResampleMethod),
			)
			return out, nil, err
		})
	},
}

// ─── filter ───────────────────────────────────────────────────────────────────

var (
	transformFilterAfter  string
	transformFilterBefore string
	transformFilterMin    float64
	transformFilterMax    float64
	transformFilterDrop   bool
)

var transformFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter observations by date range or value bounds",
	Example: `  tsprep import sensor.csv | tsprep transform filter --after 2024-01-01
  tsprep store get sensor | tsprep transform filter --min 0 --max 100 --drop-missing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := transform.FilterOptions{
			DropMissing: transformFilterDrop,
			MinValue:    math.NaN(),
			MaxValue:    math.NaN(),
		}
		var err error
		if transformFilterAfter != "" {
			if opts.After, err = util.ParseDate(transformFilterAfter); err != nil {
				return fmt.Errorf("--after: %w", err)
			}
		}
		if transformFilterBefore != "" {
			if opts.Before, err = util.ParseDate(transformFilterBefore); err != nil {
				return fmt.Errorf("--before: %w", err)
			}
		}
		if cmd.Flags().Changed("min") {
			opts.MinValue = transformFilterMin
		}
		if cmd.Flags().Changed("max") {
			opts.MaxValue = transformFilterMax
		}
		return runTransform(cmd, func(obs []model.Observation) ([]model.Observation, []string, error) {
			return transform.Filter(obs, opts), nil, nil
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.AddCommand(transformDropCmd)
	transformCmd.AddCommand(transformFillCmd)
	transformCmd.AddCommand(transformDiffCmd)
	transformCmd.AddCommand(transformLogCmd)
	transformCmd.AddCommand(transformResampleCmd)
	transformCmd.AddCommand(transformFilterCmd)
	addInputFlags(transformCmd)

	// diff flags
	transformDiffCmd.Flags().IntVar(&transformDiffOrder, "order", 1, "difference order: 1 or 2")

	// resample flags
	transformResampleCmd.Flags().StringVar(&transformResampleFreq, "freq", "monthly", "target frequency: monthly|quarterly|annual")
	transformResampleCmd.Flags().StringVar(&transformResampleMethod, "method", "mean", "aggregation method: mean|last|sum")

	// filter flags
	transformFilterCmd.Flags().StringVar(&transformFilterAfter, "after", "", "keep obs with date > YYYY-MM-DD")
	transformFilterCmd.Flags().StringVar(&transformFilterBefore, "before", "", "keep obs with date < YYYY-MM-DD")
	transformFilterCmd.Flags().Float64Var(&transformFilterMin, "min", 0, "keep obs with value >= min")
	transformFilterCmd.Flags().Float64Var(&transformFilterMax, "max", 0, "keep obs with value <= max")
	transformFilterCmd.Flags().BoolVar(&transformFilterDrop, "drop-missing", false, "drop NaN observations")
}
