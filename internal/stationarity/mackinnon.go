package stationarity

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// MacKinnon (1994) response-surface coefficients for one variable.
// smallp applies when the statistic is at or below tauStar, largep above it.
// The no-constant case has no upper cap.
var (
	tauMax  = map[string]float64{"c": 2.74, "ct": 0.7, "n": math.Inf(1)}
	tauMin  = map[string]float64{"c": -18.83, "ct": -16.18, "n": -19.04}
	tauStar = map[string]float64{"c": -1.61, "ct": -2.89, "n": -1.04}

	tauSmallP = map[string][]float64{
		"c":  {2.1659, 1.4412, 3.8269e-2},
		"ct": {3.2512, 1.6047, 4.9588e-2},
		"n":  {0.6344, 1.2378, 3.2496e-2},
	}
	tauLargeP = map[string][]float64{
		"c":  {1.7339, 9.3202e-1, -1.2745e-1, -1.0368e-2},
		"ct": {2.5261, 6.1654e-1, -3.7956e-1, -6.0285e-2},
		"n":  {0.4797, 9.3557e-1, -0.6999e-1, 3.3066e-2},
	}
)

// MacKinnon (2010) critical-value surfaces: b0 + b1/T + b2/T² + b3/T³
// for the 1%, 5% and 10% levels.
var tau2010 = map[string][3][4]float64{
	"c": {
		{-3.43035, -6.5393, -16.786, -79.433},
		{-2.86154, -2.8903, -4.234, -40.040},
		{-2.56677, -1.5384, -2.809, 0},
	},
	"ct": {
		{-3.95877, -9.0531, -28.428, -134.155},
		{-3.41049, -4.3904, -9.036, -45.374},
		{-3.12705, -2.5856, -3.925, -22.380},
	},
	"n": {
		{-2.56574, -2.2358, -3.627, 0},
		{-1.94100, -0.2686, -3.365, 31.223},
		{-1.61682, 0.2656, -2.714, 25.364},
	},
}

var critLabels = [3]string{"1%", "5%", "10%"}

// PValue returns the approximate p-value of an ADF statistic for the given
// regression variant ("c", "ct" or "n").
func PValue(stat float64, regression string) float64 {
	if stat > tauMax[regression] {
		return 1
	}
	if stat < tauMin[regression] {
		return 0
	}
	coef := tauLargeP[regression]
	if stat <= tauStar[regression] {
		coef = tauSmallP[regression]
	}
	return distuv.UnitNormal.CDF(polyval(coef, stat))
}

// CriticalValues returns the 1%, 5% and 10% critical values for a
// regression with nobs observations.
func CriticalValues(regression string, nobs int) map[string]float64 {
	surf := tau2010[regression]
	inv := 1 / float64(nobs)
	out := make(map[string]float64, len(critLabels))
	for i, label := range critLabels {
		out[label] = polyval(surf[i][:], inv)
	}
	return out
}

// polyval evaluates c[0] + c[1]x + c[2]x² + ...
func polyval(c []float64, x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}
