package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/decompose"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/spectral"
)

var (
	decomposePeriod int
	decomposeModel  string
	decomposeEdges  string
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Classical trend/seasonal/residual decomposition",
	Long: `Splits a series into trend, seasonal and residual components using a
centered moving average of length --period.

additive:        x = trend + seasonal + residual
multiplicative:  x = trend * seasonal * residual  (all values must be positive)

--edges extrapolate (default) extends the trend linearly to the ends so every
component is defined; --edges missing leaves them null.

With --period 0 the period is estimated from the strongest peak of the
periodogram.`,
	Example: `  tsprep import monthly.csv | tsprep decompose --period 12
  tsprep decompose --series sales --period 4 --model multiplicative --format csv
  tsprep decompose --series sensor --period 0 --edges missing`,
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

		var warnings []string
		period := decomposePeriod
		if period == 0 {
			period, err = estimatePeriod(s)
			if err != nil {
				return err
			}
			warnings = append(warnings, fmt.Sprintf("estimated period %d from the periodogram", period))
			deps.Logger.Info("period estimated", "series_id", s.ID(), "period", period)
		}

		d, err := decompose.Decompose(s, period, decompose.Options{
			Model: model.DecompositionModel(decomposeModel),
			Edges: decompose.EdgePolicy(decomposeEdges),
		})
		if err != nil {
			return err
		}
		result := newResult(model.KindDecomposition, commandPath(cmd), d, len(d.Dates))
		result.Warnings = warnings
		return emit(cmd, deps, result, s.ID(), started)
	},
}

// estimatePeriod rounds the dominant period of the demeaned periodogram.
func estimatePeriod(s *model.Series) (int, error) {
	sp, err := spectral.Periodogram(s, spectral.Options{Demean: true})
	if err != nil {
		return 0, err
	}
	p, ok := spectral.DominantPeriod(sp)
	if !ok {
		return 0, model.DegenerateInput("decompose", "no dominant frequency; pass --period")
	}
	period := int(math.Round(p))
	if period < 2 {
		return 0, model.DegenerateInput("decompose", "dominant period %.2f is too short; pass --period", p)
	}
	return period, nil
}

func init() {
	rootCmd.AddCommand(decomposeCmd)
	addInputFlags(decomposeCmd)

	decomposeCmd.Flags().IntVar(&decomposePeriod, "period", 0,
		"seasonal period in observations (0 = estimate from the periodogram)")
	decomposeCmd.Flags().StringVar(&decomposeModel, "model", string(model.Additive),
		"component model: additive|multiplicative")
	decomposeCmd.Flags().StringVar(&decomposeEdges, "edges", string(decompose.EdgeExtrapolate),
		"trend edges: extrapolate|missing")
}
