package spectral_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/spectral"
)

func makeSeries(t *testing.T, values []float64) *model.Series {
	t.Helper()
	s, err := model.FromValues("TEST", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), values)
	require.NoError(t, err)
	return s
}

func sine(n int, f0 float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * f0 * float64(i))
	}
	return out
}

func TestPeriodogramPeakAtSineFrequency(t *testing.T) {
	for _, tc := range []struct {
		n  int
		f0 float64
	}{
		{128, 0.125},
		{100, 0.1},
		{97, 0.23}, // off-bin and odd length
	} {
		sp, err := spectral.Periodogram(makeSeries(t, sine(tc.n, tc.f0)))
		require.NoError(t, err)
		assert.Equal(t, tc.n/2+1, len(sp.Points), "one-sided length")

		peak, ok := sp.Peak()
		require.True(t, ok)
		bin := 1 / float64(tc.n)
		assert.InDelta(t, tc.f0, peak.Frequency, bin, "n=%d f0=%g", tc.n, tc.f0)
	}
}

func TestPeriodogramPowerScaling(t *testing.T) {
	// A pure on-bin sine of amplitude 1 puts N/2 in |X_k|, so power N/4.
	n := 64
	sp, err := spectral.Periodogram(makeSeries(t, sine(n, 0.25)))
	require.NoError(t, err)
	assert.InDelta(t, float64(n)/4, sp.Points[16].Power, 1e-9)
	assert.InDelta(t, 0.25, sp.Points[16].Frequency, 1e-12)
}

func TestPeriodogramParseval(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	sp, err := spectral.Periodogram(makeSeries(t, x))
	require.NoError(t, err)
	// Sum over the full two-sided spectrum equals sum x².
	total := sp.Points[0].Power + sp.Points[len(sp.Points)-1].Power
	for _, p := range sp.Points[1 : len(sp.Points)-1] {
		total += 2 * p.Power
	}
	energy := 0.0
	for _, v := range x {
		energy += v * v
	}
	assert.InDelta(t, energy, total, 1e-9)
}

func TestFFTSpectrumCoefficients(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	sp, err := spectral.FFTSpectrum(makeSeries(t, x))
	require.NoError(t, err)
	require.Len(t, sp.Coefficients, 3)
	assert.InDelta(t, 10, real(sp.Coefficients[0]), 1e-12)
	assert.InDelta(t, -2, real(sp.Coefficients[1]), 1e-12)
	assert.InDelta(t, 2, imag(sp.Coefficients[1]), 1e-12)
	assert.InDelta(t, -2, real(sp.Coefficients[2]), 1e-12)
	assert.InDelta(t, math.Sqrt(8), sp.Points[1].Power, 1e-12)
}

func TestDemeanRemovesDC(t *testing.T) {
	x := []float64{10, 11, 10, 11, 10, 11}
	sp, err := spectral.Periodogram(makeSeries(t, x), spectral.Options{Demean: true})
	require.NoError(t, err)
	assert.InDelta(t, 0, sp.Points[0].Power, 1e-12)

	period, ok := spectral.DominantPeriod(sp)
	require.True(t, ok)
	assert.InDelta(t, 2, period, 1e-12)
}

func TestSpectrumRejectsIrregular(t *testing.T) {
	obs := []model.Observation{
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1},
		{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Value: 2},
		{Date: time.Date(2020, 1, 4, 0, 0, 0, 0, time.UTC), Value: 3},
	}
	s, err := model.NewSeries("IRR", obs)
	require.NoError(t, err)
	_, err = spectral.Periodogram(s)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
	_, err = spectral.FFTSpectrum(s)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestSpectrumTooShort(t *testing.T) {
	_, err := spectral.Periodogram(makeSeries(t, []float64{1}))
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestSpectrumMonthlyIsRegular(t *testing.T) {
	obs := make([]model.Observation, 24)
	for i := range obs {
		obs[i] = model.Observation{Date: time.Date(2020, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC), Value: float64(i % 12)}
	}
	s, err := model.NewSeries("M", obs)
	require.NoError(t, err)
	_, err = spectral.Periodogram(s)
	assert.NoError(t, err)
}
