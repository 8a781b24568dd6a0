package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/tsprep/internal/anomaly"
	"github.com/derickschaefer/tsprep/internal/app"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/pipeline"
)

var anomalyCmd = &cobra.Command{
	Use:   "anomaly",
	Short: "Flag anomalous points with the IQR or z-score detector",
	Long: `Anomaly detectors read JSONL observations and report the flagged points.

By default only flagged points are written (one JSONL line each). With
--annotate every observation is written with an "anomaly" field, so the
series can continue down a pipe.

Examples:
  tsprep import sensor.csv | tsprep anomaly iqr
  tsprep anomaly zscore --series sensor --threshold 2.5
  tsprep import sensor.csv | tsprep anomaly both --annotate | tsprep store put sensor-flagged`,
}

var anomalyAnnotate bool

// iqrK and zThreshold return the flag value when given, else the configured
// default.
func iqrK(cmd *cobra.Command, deps *app.Deps, flag float64) float64 {
	if cmd.Flags().Changed("k") {
		return flag
	}
	return deps.Config.IQRK
}

func zThreshold(cmd *cobra.Command, deps *app.Deps, flag float64) float64 {
	if cmd.Flags().Changed("threshold") {
		return flag
	}
	return deps.Config.ZThreshold
}

// detector runs one method over s and builds its report.
type detector func(s *model.Series) (model.AnomalyReport, error)

func iqrDetector(k float64) detector {
	return func(s *model.Series) (model.AnomalyReport, error) {
		mask, err := anomaly.IQR(s, k)
		if err != nil {
			return model.AnomalyReport{}, err
		}
		return anomaly.Report(s, anomaly.MethodIQR, map[string]float64{"k": k}, mask), nil
	}
}

func zscoreDetector(threshold float64) detector {
	return func(s *model.Series) (model.AnomalyReport, error) {
		mask, err := anomaly.ZScore(s, threshold)
		if err != nil {
			return model.AnomalyReport{}, err
		}
		return anomaly.Report(s, anomaly.MethodZScore, map[string]float64{"threshold": threshold}, mask), nil
	}
}

// runDetectors runs every detector concurrently. The series is read-only,
// so the calls share it safely.
func runDetectors(ctx context.Context, s *model.Series, ds ...detector) ([]model.AnomalyReport, error) {
	reports := make([]model.AnomalyReport, len(ds))
	g, _ := errgroup.WithContext(ctx)
	for i, d := range ds {
		i, d := i, d
		g.Go(func() error {
			r, err := d(s)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// runAnomaly is the shared RunE body of the detector commands.
func runAnomaly(cmd *cobra.Command, pick func(deps *app.Deps) []detector) error {
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
	reports, err := runDetectors(cmd.Context(), s, pick(deps)...)
	if err != nil {
		return err
	}

	if anomalyAnnotate {
		return writeAnnotated(cmd, s, reports)
	}

	var result *model.Result
	flagged := 0
	for _, r := range reports {
		flagged += len(r.Anomalies)
	}
	if len(reports) == 1 {
		result = newResult(model.KindAnomalies, commandPath(cmd), reports[0], flagged)
	} else {
		result = newResult(model.KindAnomalies, commandPath(cmd), reports, flagged)
	}
	return emit(cmd, deps, result, s.ID(), started)
}

// writeAnnotated writes every observation of s with the union of the report
// masks as its anomaly flag.
func writeAnnotated(cmd *cobra.Command, s *model.Series, reports []model.AnomalyReport) error {
	union := make([]bool, s.Len())
	for _, r := range reports {
		for i, m := range r.Mask {
			union[i] = union[i] || m
		}
	}
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeFn()
	return pipeline.WriteAnnotated(w, s.ID(), s.Observations(), union, nil)
}

// ─── anomaly iqr ──────────────────────────────────────────────────────────────

var anomalyIQRK float64

var anomalyIQRCmd = &cobra.Command{
	Use:   "iqr",
	Short: "Flag points outside [Q1 - k*IQR, Q3 + k*IQR]",
	Example: `  tsprep import sensor.csv | tsprep anomaly iqr
  tsprep anomaly iqr --series sensor --k 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnomaly(cmd, func(deps *app.Deps) []detector {
			return []detector{iqrDetector(iqrK(cmd, deps, anomalyIQRK))}
		})
	},
}

// ─── anomaly zscore ───────────────────────────────────────────────────────────

var anomalyZThreshold float64

var anomalyZScoreCmd = &cobra.Command{
	Use:   "zscore",
	Short: "Flag points whose |z-score| exceeds --threshold",
	Example: `  tsprep import sensor.csv | tsprep anomaly zscore
  tsprep anomaly zscore --series sensor --threshold 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnomaly(cmd, func(deps *app.Deps) []detector {
			return []detector{zscoreDetector(zThreshold(cmd, deps, anomalyZThreshold))}
		})
	},
}

// ─── anomaly both ─────────────────────────────────────────────────────────────

var anomalyBothCmd = &cobra.Command{
	Use:   "both",
	Short: "Run the IQR and z-score detectors concurrently",
	Example: `  tsprep import sensor.csv | tsprep anomaly both
  tsprep anomaly both --series sensor --k 2 --threshold 2.5 --annotate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnomaly(cmd, func(deps *app.Deps) []detector {
			return []detector{
				iqrDetector(iqrK(cmd, deps, anomalyIQRK)),
				zscoreDetector(zThreshold(cmd, deps, anomalyZThreshold)),
			}
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(anomalyCmd)
	anomalyCmd.AddCommand(anomalyIQRCmd)
	anomalyCmd.AddCommand(anomalyZScoreCmd)
	anomalyCmd.AddCommand(anomalyBothCmd)
	addInputFlags(anomalyCmd)

	anomalyCmd.PersistentFlags().BoolVar(&anomalyAnnotate, "annotate", false,
		"write every observation with an anomaly field instead of the flagged points")

	anomalyIQRCmd.Flags().Float64Var(&anomalyIQRK, "k", anomaly.DefaultIQRK, "fence multiplier (config: iqr_k)")
	anomalyZScoreCmd.Flags().Float64Var(&anomalyZThreshold, "threshold", anomaly.DefaultZThreshold, "absolute z-score cut-off (config: z_threshold)")
	anomalyBothCmd.Flags().Float64Var(&anomalyIQRK, "k", anomaly.DefaultIQRK, "IQR fence multiplier (config: iqr_k)")
	anomalyBothCmd.Flags().Float64Var(&anomalyZThreshold, "threshold", anomaly.DefaultZThreshold, "absolute z-score cut-off (config: z_threshold)")
}
