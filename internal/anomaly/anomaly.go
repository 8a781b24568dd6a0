// Package anomaly implements the interquartile-range and z-score outlier
// detectors. Detectors return a Mask aligned with the input series.
package anomaly

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/tsprep/internal/model"
)

// Default detector parameters.
const (
	DefaultIQRK       = 1.5
	DefaultZThreshold = 3.0
)

// Method names recorded in AnomalyReport.Method.
const (
	MethodIQR    = "iqr"
	MethodZScore = "zscore"
)

// ─── IQR ──────────────────────────────────────────────────────────────────────

// Bounds is the inclusive acceptance interval of the IQR detector.
type Bounds struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	IQR   float64 `json:"iqr"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// IQRBounds computes Q1, Q3 and the fences [Q1-k*IQR, Q3+k*IQR].
func IQRBounds(s *model.Series, k float64) (Bounds, error) {
	if math.IsNaN(k) || k < 0 {
		return Bounds{}, model.InvalidParameter("iqr", "k must be non-negative, got %g", k)
	}
	sorted := s.Values()
	sort.Float64s(sorted)
	q1 := QuantileSorted(sorted, 0.25)
	q3 := QuantileSorted(sorted, 0.75)
	iqr := q3 - q1
	return Bounds{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - k*iqr,
		Upper: q3 + k*iqr,
	}, nil
}

// IQR flags points strictly outside [Q1-k*IQR, Q3+k*IQR].
func IQR(s *model.Series, k float64) (model.Mask, error) {
	b, err := IQRBounds(s, k)
	if err != nil {
		return nil, err
	}
	vals := s.Values()
	mask := make(model.Mask, len(vals))
	for i, v := range vals {
		mask[i] = v < b.Lower || v > b.Upper
	}
	return mask, nil
}

// Quantile returns the p-quantile of values by linear interpolation between
// closest ranks. values need not be sorted and is not modified.
func Quantile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, model.InsufficientData("quantile", "no values")
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, model.InvalidParameter("quantile", "p must be in [0, 1], got %g", p)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return QuantileSorted(sorted, p), nil
}

// QuantileSorted is Quantile over already sorted values with p in [0, 1],
// without validation. It returns NaN for an empty slice.
func QuantileSorted(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return math.NaN()
	case 1:
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// ─── Z-score ──────────────────────────────────────────────────────────────────

// ZScores returns (x-μ)/σ for every point, using the population standard
// deviation. A constant series has no defined scores.
func ZScores(s *model.Series) ([]float64, error) {
	vals := s.Values()
	mean, std := stat.PopMeanStdDev(vals, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, model.DegenerateInput("zscore", "standard deviation is zero")
	}
	for i, v := range vals {
		vals[i] = (v - mean) / std
	}
	return vals, nil
}

// ZScore flags points with |x-μ|/σ > threshold. A constant series yields an
// all-false mask: no point deviates from the mean.
func ZScore(s *model.Series, threshold float64) (model.Mask, error) {
	if !(threshold > 0) {
		return nil, model.InvalidParameter("zscore", "threshold must be positive, got %g", threshold)
	}
	mask := make(model.Mask, s.Len())
	scores, err := ZScores(s)
	if err != nil {
		return mask, nil
	}
	for i, z := range scores {
		mask[i] = math.Abs(z) > threshold
	}
	return mask, nil
}

// ─── Reports ──────────────────────────────────────────────────────────────────

// Flagged lists the points marked in mask.
func Flagged(s *model.Series, mask model.Mask) []model.FlaggedPoint {
	out := make([]model.FlaggedPoint, 0, mask.Count())
	for _, i := range mask.Indices() {
		o := s.At(i)
		out = append(out, model.FlaggedPoint{Index: i, Date: o.Date, Value: o.Value})
	}
	return out
}

// Report bundles a detector mask into the CLI payload.
func Report(s *model.Series, method string, params map[string]float64, mask model.Mask) model.AnomalyReport {
	return model.AnomalyReport{
		SeriesID:  s.ID(),
		Method:    method,
		Params:    params,
		Total:     s.Len(),
		Mask:      mask,
		Anomalies: Flagged(s, mask),
	}
}
