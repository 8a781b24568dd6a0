package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/anomaly"
	"github.com/derickschaefer/tsprep/internal/chart"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/spectral"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a time series as an ASCII chart (reads JSONL from stdin)",
	Long: `Chart commands read JSONL observations and render to the terminal.

Pipeline examples:
  tsprep import sensor.csv | tsprep chart plot --mark-anomalies iqr
  tsprep import sensor.csv | tsprep smooth ma --window 7 | tsprep chart plot
  tsprep import daily.csv | tsprep transform resample --freq annual | tsprep chart bar
  tsprep import monthly.csv | tsprep chart bar --spectrum periodogram --demean`,
}

// ─── chart bar ───────────────────────────────────────────────────────────────

var (
	chartBarWidth    int
	chartBarMaxBars  int
	chartBarSpectrum string
	chartBarDemean   bool
)

var chartBarCmd = &cobra.Command{
	Use:   "bar",
	Short: "Horizontal bar chart, one bar per observation or frequency bin",
	Long: `Renders a horizontal bar chart with one labeled bar per observation.

Best suited for low-frequency or resampled data (annual, quarterly). For
daily series, pipe through transform resample first.

With --spectrum periodogram|fft the bars show the power of each non-DC
frequency bin, labeled with its period in samples; the peak is starred.

Negative values are supported; bars extend left from a zero baseline.
NaN observations are silently skipped.`,
	Example: `  tsprep import daily.csv | tsprep transform resample --freq annual --method mean | tsprep chart bar
  tsprep store get sensor | tsprep chart bar --max-bars 10
  tsprep import monthly.csv | tsprep chart bar --spectrum periodogram --demean`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		opts := chart.BarOptions{Width: chartBarWidth, MaxBars: chartBarMaxBars}

		if chartBarSpectrum == "" {
			data, err := readInput(cmd, deps)
			if err != nil {
				return err
			}
			return chart.Bar(w, data.SeriesID, data.Obs, opts)
		}

		s, err := loadSeries(cmd, deps)
		if err != nil {
			return err
		}
		var sp model.Spectrum
		switch chartBarSpectrum {
		case model.SpectrumPeriodogram:
			sp, err = spectral.Periodogram(s, spectral.Options{Demean: chartBarDemean})
		case model.SpectrumFFT:
			sp, err = spectral.FFTSpectrum(s, spectral.Options{Demean: chartBarDemean})
		default:
			return fmt.Errorf("--spectrum: unknown kind %q (use periodogram or fft)", chartBarSpectrum)
		}
		if err != nil {
			return err
		}
		return chart.SpectrumBar(w, sp, opts)
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotWidth  int
	chartPlotHeight int
	chartPlotTitle  string
	chartPlotMark   string
	chartPlotK      float64
	chartPlotZ      float64
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Multi-line ASCII chart with labeled axes",
	Long: `Renders a multi-line chart with Y-axis tick labels and X-axis date labels.

NaN values appear as gaps in the curve, not zeros. Width auto-detects from
the terminal, then $COLUMNS (falls back to 80). Override with --width and
--height.

--mark-anomalies iqr|zscore runs the detector and marks flagged points
with ●. The series is cleaned with the --missing policy first.`,
	Example: `  tsprep import sensor.csv | tsprep chart plot
  tsprep store get sensor | tsprep chart plot --height 8 --title "Sensor A"
  tsprep import sensor.csv | tsprep chart plot --mark-anomalies zscore --threshold 2.5
  tsprep import sensor.csv | tsprep smooth savgol --window 11 | tsprep chart plot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		data, err := readInput(cmd, deps)
		if err != nil {
			return err
		}
		title := chartPlotTitle
		if title == "" {
			title = data.SeriesID
		}
		opts := chart.PlotOptions{Width: chartPlotWidth, Height: chartPlotHeight, Title: title}
		obs := data.Obs

		if chartPlotMark != "" {
			s, err := prepareSeries(deps, data)
			if err != nil {
				return err
			}
			var mask model.Mask
			switch chartPlotMark {
			case anomaly.MethodIQR:
				k := deps.Config.IQRK
				if cmd.Flags().Changed("k") {
					k = chartPlotK
				}
				mask, err = anomaly.IQR(s, k)
			case anomaly.MethodZScore:
				z := deps.Config.ZThreshold
				if cmd.Flags().Changed("threshold") {
					z = chartPlotZ
				}
				mask, err = anomaly.ZScore(s, z)
			default:
				return fmt.Errorf("--mark-anomalies: unknown method %q (use iqr or zscore)", chartPlotMark)
			}
			if err != nil {
				return err
			}
			obs = s.Observations()
			opts.Marks = mask
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return chart.Plot(w, data.SeriesID, obs, opts)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartPlotCmd)
	addInputFlags(chartCmd)

	// bar flags
	chartBarCmd.Flags().IntVar(&chartBarWidth, "width", 0,
		"total chart width in characters (default: auto-detect, fallback 80)")
	chartBarCmd.Flags().IntVar(&chartBarMaxBars, "max-bars", 0,
		"maximum bars to render: takes the last N observations, or the first N bins (0 = no limit)")
	chartBarCmd.Flags().StringVar(&chartBarSpectrum, "spectrum", "",
		"draw a spectrum instead of the values: periodogram|fft")
	chartBarCmd.Flags().BoolVar(&chartBarDemean, "demean", false,
		"subtract the mean before the spectrum")

	// plot flags
	chartPlotCmd.Flags().IntVar(&chartPlotWidth, "width", 0,
		"chart width in characters (default: auto-detect, fallback 80)")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12,
		"chart height in rows (default 12)")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "",
		"chart title (default: series ID)")
	chartPlotCmd.Flags().StringVar(&chartPlotMark, "mark-anomalies", "",
		"mark points flagged by a detector: iqr|zscore")
	chartPlotCmd.Flags().Float64Var(&chartPlotK, "k", anomaly.DefaultIQRK,
		"IQR fence multiplier for --mark-anomalies iqr")
	chartPlotCmd.Flags().Float64Var(&chartPlotZ, "threshold", anomaly.DefaultZThreshold,
		"z-score cut-off for --mark-anomalies zscore")
}
