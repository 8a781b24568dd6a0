package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/spectral"
)

var spectrumCmd = &cobra.Command{
	Use:   "spectrum",
	Short: "Frequency-domain views: periodogram and DFT spectrum",
	Long: `Spectral commands need an evenly spaced series; resample irregular data
first. Output covers frequencies k/N for k = 0..N/2 in cycles per sample.

Examples:
  tsprep import monthly.csv | tsprep spectrum periodogram --demean
  tsprep import monthly.csv | tsprep chart bar --spectrum
  tsprep spectrum fft --series sensor --format csv`,
}

var spectrumDemean bool

// runSpectrum is the shared RunE body of the spectral commands.
func runSpectrum(cmd *cobra.Command, fn func(*model.Series, ...spectral.Options) (model.Spectrum, error)) error {
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
	sp, err := fn(s, spectral.Options{Demean: spectrumDemean})
	if err != nil {
		return err
	}
	result := newResult(model.KindSpectrum, commandPath(cmd), sp, len(sp.Points))
	if p, ok := spectral.DominantPeriod(sp); ok {
		deps.Logger.Info("dominant period", "series_id", s.ID(), "period", p)
		if !spectrumDemean && len(sp.Points) > 0 && sp.Points[0].Power > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("DC component present (power %.4g); use --demean to remove it", sp.Points[0].Power))
		}
	}
	return emit(cmd, deps, result, s.ID(), started)
}

var spectrumPeriodogramCmd = &cobra.Command{
	Use:   "periodogram",
	Short: "Power |X_k|²/N at each frequency",
	Example: `  tsprep import monthly.csv | tsprep spectrum periodogram --demean`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpectrum(cmd, spectral.Periodogram)
	},
}

var spectrumFFTCmd = &cobra.Command{
	Use:   "fft",
	Short: "One-sided DFT coefficients and magnitudes",
	Example: `  tsprep import monthly.csv | tsprep spectrum fft --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpectrum(cmd, spectral.FFTSpectrum)
	},
}

func init() {
	rootCmd.AddCommand(spectrumCmd)
	spectrumCmd.AddCommand(spectrumPeriodogramCmd)
	spectrumCmd.AddCommand(spectrumFFTCmd)
	addInputFlags(spectrumCmd)

	spectrumCmd.PersistentFlags().BoolVar(&spectrumDemean, "demean", false,
		"subtract the mean first, removing the DC spike")
}
