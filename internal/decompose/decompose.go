// Package decompose performs classical seasonal decomposition by moving
// averages.
package decompose

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/smooth"
)

// EdgePolicy selects how the trend is completed where the centered moving
// average is undefined.
type EdgePolicy string

const (
	// EdgeExtrapolate fits a least-squares line to the nearest period trend
	// points at each end and extends it, so every component is defined.
	EdgeExtrapolate EdgePolicy = "extrapolate"
	// EdgeMissing leaves the trend and residual edges as NaN.
	EdgeMissing EdgePolicy = "missing"
)

// Options configures Decompose. The zero value is an additive decomposition
// with extrapolated edges.
type Options struct {
	Model model.DecompositionModel
	Edges EdgePolicy
}

const op = "decompose"

// Decompose splits s into trend, seasonal and residual components with the
// given seasonal period.
func Decompose(s *model.Series, period int, opts Options) (model.Decomposition, error) {
	kind := opts.Model
	if kind == "" {
		kind = model.Additive
	}
	edges := opts.Edges
	if edges == "" {
		edges = EdgeExtrapolate
	}

	switch {
	case period <= 1:
		return model.Decomposition{}, model.InvalidParameter(op, "period must be greater than 1, got %d", period)
	case s.Len() < 2*period:
		return model.Decomposition{}, model.InvalidParameter(op, "series of length %d is shorter than two periods (%d)", s.Len(), 2*period)
	case kind != model.Additive && kind != model.Multiplicative:
		return model.Decomposition{}, model.InvalidParameter(op, "unknown model %q (want additive or multiplicative)", kind)
	case edges != EdgeExtrapolate && edges != EdgeMissing:
		return model.Decomposition{}, model.InvalidParameter(op, "unknown edge policy %q", edges)
	}

	x := s.Values()
	if kind == model.Multiplicative {
		for i, v := range x {
			if v <= 0 {
				return model.Decomposition{}, model.InvalidParameter(op, "multiplicative model needs positive values; index %d is %g", i, v)
			}
		}
	}

	trend := smooth.CenteredTrend(x, period)
	if edges == EdgeExtrapolate {
		extrapolateTrend(trend, period)
	}

	n := len(x)
	detrended := make([]float64, n)
	for i := range x {
		if kind == model.Multiplicative {
			detrended[i] = x[i] / trend[i]
		} else {
			detrended[i] = x[i] - trend[i]
		}
	}

	pattern := seasonalPattern(detrended, period, kind)
	seasonal := make(model.Floats, n)
	residual := make(model.Floats, n)
	for i := range x {
		seasonal[i] = pattern[i%period]
		if kind == model.Multiplicative {
			residual[i] = x[i] / (trend[i] * seasonal[i])
		} else {
			residual[i] = x[i] - trend[i] - seasonal[i]
		}
	}

	return model.Decomposition{
		SeriesID: s.ID(),
		Model:    kind,
		Period:   period,
		Dates:    s.Dates(),
		Observed: x,
		Trend:    trend,
		Seasonal: seasonal,
		Residual: residual,
	}, nil
}

// extrapolateTrend fills the NaN edges of trend in place with a line fitted
// to the nearest period defined points on each side.
func extrapolateTrend(trend []float64, period int) {
	first, last := -1, -1
	for i, v := range trend {
		if !math.IsNaN(v) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return
	}
	k := period
	if avail := last - first + 1; k > avail {
		k = avail
	}

	fill := func(from, to int, fitStart int) {
		xs := make([]float64, k)
		ys := make([]float64, k)
		for j := 0; j < k; j++ {
			xs[j] = float64(fitStart + j)
			ys[j] = trend[fitStart+j]
		}
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		for i := from; i < to; i++ {
			trend[i] = alpha + beta*float64(i)
		}
	}
	fill(0, first, first)
	fill(last+1, len(trend), last-k+1)
}

// seasonalPattern averages the defined detrended values phase by phase and
// normalizes the result to sum to zero (additive) or average one
// (multiplicative).
func seasonalPattern(detrended []float64, period int, kind model.DecompositionModel) []float64 {
	sums := make([]float64, period)
	counts := make([]int, period)
	for i, v := range detrended {
		if math.IsNaN(v) {
			continue
		}
		sums[i%period] += v
		counts[i%period]++
	}
	pattern := make([]float64, period)
	for p := range pattern {
		pattern[p] = sums[p] / float64(counts[p])
	}

	mean := stat.Mean(pattern, nil)
	for p := range pattern {
		if kind == model.Multiplicative {
			pattern[p] /= mean
		} else {
			pattern[p] -= mean
		}
	}
	return pattern
}
