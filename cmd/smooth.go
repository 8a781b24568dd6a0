package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/smooth"
)

var smoothCmd = &cobra.Command{
	Use:   "smooth",
	Short: "Smooth a series: moving average, exponential, Savitzky-Golay",
	Long: `Smoothing filters read JSONL observations from stdin (or --input/--series)
and write the smoothed series. Positions where a filter is undefined (the
first window-1 points of a trailing moving average) are written with
"valid": false and a null value.

Pipeline example:
  tsprep import sensor.csv | tsprep smooth ma --window 7 | tsprep chart plot`,
}

// runSmoother is the shared RunE body of the smoothing commands.
func runSmoother(cmd *cobra.Command, fn func(*model.Series) (model.SmoothedSeries, error)) error {
	started := time.Now()
	deps, err := buildDeps(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	s, err := loadSeries(cmd, deps)
	if err != nil {
		return err
	}
	out, err := fn(s)
	if err != nil {
		return err
	}
	result := newResult(model.KindSmoothed, commandPath(cmd), out, out.Len())
	return emit(cmd, deps, result, s.ID(), started)
}

// ─── smooth ma ────────────────────────────────────────────────────────────────

var smoothMAWindow int

var smoothMACmd = &cobra.Command{
	Use:   "ma",
	Short: "Trailing simple moving average over --window points",
	Example: `  tsprep import sensor.csv | tsprep smooth ma --window 7
  tsprep smooth ma --series sensor --window 30 --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSmoother(cmd, func(s *model.Series) (model.SmoothedSeries, error) {
			return smooth.MovingAverage(s, smoothMAWindow)
		})
	},
}

// ─── smooth cma ───────────────────────────────────────────────────────────────

var smoothCMAWindow int

var smoothCMACmd = &cobra.Command{
	Use:   "cma",
	Short: "Centered moving average (2xN for even windows)",
	Example: `  tsprep import monthly.csv | tsprep smooth cma --window 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSmoother(cmd, func(s *model.Series) (model.SmoothedSeries, error) {
			return smooth.CenteredMovingAverage(s, smoothCMAWindow)
		})
	},
}

// ─── smooth ewm ───────────────────────────────────────────────────────────────

var smoothEWMAlpha float64

var smoothEWMCmd = &cobra.Command{
	Use:   "ewm",
	Short: "Exponential smoothing: s[t] = alpha*x[t] + (1-alpha)*s[t-1]",
	Example: `  tsprep import sensor.csv | tsprep smooth ewm --alpha 0.3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSmoother(cmd, func(s *model.Series) (model.SmoothedSeries, error) {
			return smooth.ExponentialSmoothing(s, smoothEWMAlpha)
		})
	},
}

// ─── smooth savgol ────────────────────────────────────────────────────────────

var (
	smoothSGWindow    int
	smoothSGPolyorder int
)

var smoothSGCmd = &cobra.Command{
	Use:   "savgol",
	Short: "Savitzky-Golay polynomial filter (odd --window, --polyorder < window)",
	Example: `  tsprep import sensor.csv | tsprep smooth savgol --window 11 --polyorder 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSmoother(cmd, func(s *model.Series) (model.SmoothedSeries, error) {
			return smooth.SavitzkyGolay(s, smoothSGWindow, smoothSGPolyorder)
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(smoothCmd)
	smoothCmd.AddCommand(smoothMACmd)
	smoothCmd.AddCommand(smoothCMACmd)
	smoothCmd.AddCommand(smoothEWMCmd)
	smoothCmd.AddCommand(smoothSGCmd)
	addInputFlags(smoothCmd)

	smoothMACmd.Flags().IntVar(&smoothMAWindow, "window", 3, "window size in observations")
	smoothCMACmd.Flags().IntVar(&smoothCMAWindow, "window", 3, "window size in observations")
	smoothEWMCmd.Flags().Float64Var(&smoothEWMAlpha, "alpha", 0.3, "smoothing factor in (0, 1]")
	smoothSGCmd.Flags().IntVar(&smoothSGWindow, "window", 5, "odd window length")
	smoothSGCmd.Flags().IntVar(&smoothSGPolyorder, "polyorder", 2, "polynomial order, less than --window")
}
