package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/analyze"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/stationarity"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Diagnose a series: summary, trend, autocorrelation, ADF test",
	Long: `Analyze operators read JSONL observations and print results.

Examples:
  tsprep import sensor.csv | tsprep analyze summary
  tsprep analyze adf --series sensor --regression ct
  tsprep import sensor.csv | tsprep transform diff | tsprep analyze adf`,
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Descriptive statistics: count, missing, mean, std, quartiles, skew",
	Example: `  tsprep import sensor.csv | tsprep analyze summary
  tsprep analyze summary --series sensor --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		// Summaries count missing values, so they see the raw input.
		data, err := readInput(cmd, deps)
		if err != nil {
			return err
		}
		s := analyze.Summarize(data.SeriesID, data.Obs)
		return emit(cmd, deps, newResult(model.KindSummary, commandPath(cmd), s, s.Count), data.SeriesID, started)
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var analyzeTrendMethod string

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Fit a linear trend: slope, intercept, R², direction",
	Example: `  tsprep import sensor.csv | tsprep analyze trend
  tsprep analyze trend --series sensor --method theil-sen`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		tr, err := analyze.Trend(s, analyze.TrendMethod(analyzeTrendMethod))
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindTrend, commandPath(cmd), tr, s.Len()), s.ID(), started)
	},
}

// ─── analyze acf ──────────────────────────────────────────────────────────────

var analyzeACFLags int

var analyzeACFCmd = &cobra.Command{
	Use:   "acf",
	Short: "Autocorrelation and partial autocorrelation with a 95% band",
	Example: `  tsprep import sensor.csv | tsprep analyze acf --lags 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		res, err := analyze.ACF(s, analyzeACFLags)
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindACF, commandPath(cmd), res, len(res.ACF)), s.ID(), started)
	},
}

// ─── analyze adf ──────────────────────────────────────────────────────────────

var (
	analyzeADFRegression string
	analyzeADFAutoLag    string
	analyzeADFLags       int
	analyzeADFMaxLag     int
)

var analyzeADFCmd = &cobra.Command{
	Use:   "adf",
	Short: "Augmented Dickey-Fuller unit-root test",
	Long: `Runs the Augmented Dickey-Fuller test. A p-value below 0.05 rejects the
unit root and the series is reported stationary.

--regression selects the deterministic terms: c (constant), ct (constant and
trend) or n (none). --autolag picks the number of lagged differences by aic,
bic or t-stat up to --maxlag; --autolag none uses exactly --lags.`,
	Example: `  tsprep import sensor.csv | tsprep analyze adf
  tsprep analyze adf --series sensor --regression ct --autolag bic
  tsprep analyze adf --series sensor --autolag none --lags 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		opts := stationarity.Options{
			Regression: deps.Config.ADFRegression,
			AutoLag:    deps.Config.ADFAutoLag,
			Lags:       analyzeADFLags,
			MaxLag:     analyzeADFMaxLag,
		}
		if cmd.Flags().Changed("regression") {
			opts.Regression = analyzeADFRegression
		}
		if cmd.Flags().Changed("autolag") {
			opts.AutoLag = analyzeADFAutoLag
		}
		if strings.EqualFold(opts.AutoLag, "none") {
			opts.AutoLag = ""
		}

		s, err := loadSeries(cmd, deps)
		if err != nil {
			return err
		}
		res, err := stationarity.ADF(s, opts)
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindStationarity, commandPath(cmd), res, res.NObs), s.ID(), started)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)
	analyzeCmd.AddCommand(analyzeACFCmd)
	analyzeCmd.AddCommand(analyzeADFCmd)
	addInputFlags(analyzeCmd)

	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", string(analyze.TrendLinear),
		"regression method: linear|theil-sen")

	analyzeACFCmd.Flags().IntVar(&analyzeACFLags, "lags", 0,
		"maximum lag (0 = 10*log10(n))")

	analyzeADFCmd.Flags().StringVar(&analyzeADFRegression, "regression", stationarity.RegressionConstant,
		"deterministic terms: c|ct|n (config: adf_regression)")
	analyzeADFCmd.Flags().StringVar(&analyzeADFAutoLag, "autolag", stationarity.AutoLagAIC,
		"lag selection: aic|bic|t-stat|none (config: adf_autolag)")
	analyzeADFCmd.Flags().IntVar(&analyzeADFLags, "lags", 0,
		"fixed number of lagged differences when --autolag none")
	analyzeADFCmd.Flags().IntVar(&analyzeADFMaxLag, "maxlag", 0,
		"upper bound of the lag search (0 = 12*(n/100)^(1/4))")
}
