// Package smooth implements the smoothing filters: trailing and centered
// moving averages, simple exponential smoothing and the Savitzky-Golay
// polynomial filter. Every filter returns a SmoothedSeries of the same
// length as its input and never modifies the input.
package smooth

import (
	"errors"
	"math"

	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/tsprep/internal/model"
)

// Method names recorded in SmoothedSeries.Method.
const (
	MethodMovingAverage         = "ma"
	MethodCenteredMovingAverage = "cma"
	MethodExponential           = "ewm"
	MethodSavitzkyGolay         = "savgol"
)

// ─── Moving averages ──────────────────────────────────────────────────────────

// MovingAverage returns the unweighted mean of the trailing window points
// ending at each index. The first window-1 positions are undefined.
func MovingAverage(s *model.Series, window int) (model.SmoothedSeries, error) {
	const op = "moving-average"
	if window <= 0 {
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window must be positive, got %d", window)
	}
	if window > s.Len() {
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window %d exceeds series length %d", window, s.Len())
	}

	out := newSmoothed(s, MethodMovingAverage)
	means := rollingMeans(s.Values(), window)
	for i, m := range means {
		out.Values[i+window-1] = m
		out.Valid[i+window-1] = true
	}
	return out, nil
}

// CenteredMovingAverage returns the mean of the window points centered on
// each index. Even windows use the 2xwindow average with half weights on the
// two end points. The window/2 positions at each end are undefined.
func CenteredMovingAverage(s *model.Series, window int) (model.SmoothedSeries, error) {
	const op = "centered-moving-average"
	if window <= 0 {
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window must be positive, got %d", window)
	}
	if span := window + 1 - window%2; span > s.Len() {
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window %d spans %d points, series has %d", window, span, s.Len())
	}

	out := newSmoothed(s, MethodCenteredMovingAverage)
	for i, v := range CenteredTrend(s.Values(), window) {
		if !math.IsNaN(v) {
			out.Values[i] = v
			out.Valid[i] = true
		}
	}
	return out, nil
}

// CenteredTrend is the centered moving average of x over window points: a
// plain window-point mean for odd windows, the 2xwindow mean (half weights
// on the two end points) for even ones. The window/2 positions at each end
// are NaN.
func CenteredTrend(x []float64, window int) model.Floats {
	n := len(x)
	out := make(model.Floats, n)
	for i := range out {
		out[i] = math.NaN()
	}
	half := window / 2
	if window <= 0 || n < window+1-window%2 {
		return out
	}

	means := rollingMeans(x, window)
	if window%2 == 1 {
		for j, m := range means {
			out[j+half] = m
		}
		return out
	}
	// Averaging two neighbouring window-point means weights the outer
	// points by half.
	for j := 0; j+1 < len(means); j++ {
		out[j+half] = (means[j] + means[j+1]) / 2
	}
	return out
}

// rollingMeans returns len(values)-window+1 means of consecutive windows,
// keeping a running sum over a deque of the points currently inside.
func rollingMeans(values []float64, window int) []float64 {
	var buf deque.Deque[float64]
	means := make([]float64, 0, len(values)-window+1)
	sum := 0.0
	for _, v := range values {
		buf.PushBack(v)
		sum += v
		if buf.Len() > window {
			sum -= buf.PopFront()
		}
		if buf.Len() == window {
			means = append(means, sum/float64(window))
		}
	}
	return means
}

// ─── Exponential smoothing ────────────────────────────────────────────────────

// ExponentialSmoothing applies s[0] = x[0], s[i] = alpha*x[i] + (1-alpha)*s[i-1].
// alpha must lie in (0, 1]; alpha == 1 reproduces the input.
func ExponentialSmoothing(s *model.Series, alpha float64) (model.SmoothedSeries, error) {
	const op = "exponential-smoothing"
	if !(alpha > 0 && alpha <= 1) {
		return model.SmoothedSeries{}, model.InvalidParameter(op, "alpha must be in (0, 1], got %g", alpha)
	}

	out := newSmoothed(s, MethodExponential)
	prev := 0.0
	for i, v := range s.Values() {
		if i == 0 {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out.Values[i] = prev
		out.Valid[i] = true
	}
	return out, nil
}

// ─── Savitzky-Golay ───────────────────────────────────────────────────────────

// SavitzkyGolay fits a least-squares polynomial of degree polyorder over a
// centered window of windowLength points and takes its value at the center.
// The first and last windowLength/2 points are evaluated on the polynomial
// fitted to the nearest full window, so every position is defined.
func SavitzkyGolay(s *model.Series, windowLength, polyorder int) (model.SmoothedSeries, error) {
	const op = "savitzky-golay"
	switch {
	case windowLength <= 0 || windowLength%2 == 0:
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window length must be a positive odd number, got %d", windowLength)
	case polyorder < 0:
		return model.SmoothedSeries{}, model.InvalidParameter(op, "polyorder must be non-negative, got %d", polyorder)
	case windowLength <= polyorder:
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window length %d must exceed polyorder %d", windowLength, polyorder)
	case windowLength > s.Len():
		return model.SmoothedSeries{}, model.InvalidParameter(op, "window length %d exceeds series length %d", windowLength, s.Len())
	}

	coef, err := savgolCoefficients(windowLength, polyorder)
	if err != nil {
		return model.SmoothedSeries{}, model.DegenerateInput(op, "fitting window: %v", err)
	}

	x := s.Values()
	n := len(x)
	half := windowLength / 2
	out := newSmoothed(s, MethodSavitzkyGolay)

	// Interior: convolution with the first row of the pseudo-inverse.
	center := coef.RawRowView(0)
	for i := half; i < n-half; i++ {
		out.Values[i] = dot(center, x[i-half:i+half+1])
	}

	// Edges: evaluate the fitted polynomial of the outermost windows.
	head := polyFit(coef, x[:windowLength])
	tail := polyFit(coef, x[n-windowLength:])
	for i := 0; i < half; i++ {
		out.Values[i] = polyEval(head, float64(i-half))
		out.Values[n-half+i] = polyEval(tail, float64(i+1))
	}

	for i := range out.Valid {
		out.Valid[i] = true
	}
	return out, nil
}

// savgolCoefficients returns the (polyorder+1) x windowLength pseudo-inverse
// of the Vandermonde matrix over offsets -half..half. Row j maps a window of
// samples to the coefficient of t^j.
func savgolCoefficients(windowLength, polyorder int) (*mat.Dense, error) {
	half := windowLength / 2
	a := mat.NewDense(windowLength, polyorder+1, nil)
	for i := 0; i < windowLength; i++ {
		t := float64(i - half)
		p := 1.0
		for j := 0; j <= polyorder; j++ {
			a.Set(i, j, p)
			p *= t
		}
	}

	eye := mat.NewDiagDense(windowLength, nil)
	for i := 0; i < windowLength; i++ {
		eye.SetDiag(i, 1)
	}

	var pinv mat.Dense
	if err := pinv.Solve(a, eye); err != nil {
		// A Condition error still carries a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	return &pinv, nil
}

// polyFit returns the polynomial coefficients (lowest degree first) fitted
// to one window.
func polyFit(coef *mat.Dense, window []float64) []float64 {
	rows, _ := coef.Dims()
	out := make([]float64, rows)
	for j := 0; j < rows; j++ {
		out[j] = dot(coef.RawRowView(j), window)
	}
	return out
}

func polyEval(c []float64, t float64) float64 {
	v := 0.0
	for j := len(c) - 1; j >= 0; j-- {
		v = v*t + c[j]
	}
	return v
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// newSmoothed allocates an all-undefined output aligned with s.
func newSmoothed(s *model.Series, method string) model.SmoothedSeries {
	n := s.Len()
	vals := make(model.Floats, n)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return model.SmoothedSeries{
		SeriesID: s.ID(),
		Method:   method,
		Dates:    s.Dates(),
		Values:   vals,
		Valid:    make([]bool, n),
	}
}
