// Package analyze computes descriptive diagnostics that accompany the
// preprocessing toolkit: summaries, trend fits and autocorrelation.
// All functions are pure; no I/O.
package analyze

import (
	"encoding/json"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/tsprep/internal/anomaly"
	"github.com/derickschaefer/tsprep/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for a series.
type Summary struct {
	SeriesID   string  `json:"series_id"`
	Count      int     `json:"count"`       // total observations
	Missing    int     `json:"missing"`     // NaN count
	MissingPct float64 `json:"missing_pct"` // percent missing
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	P25        float64 `json:"p25"`
	Median     float64 `json:"median"`
	P75        float64 `json:"p75"`
	Max        float64 `json:"max"`
	Skew       float64 `json:"skew"`
	First      float64 `json:"first"`      // first non-NaN value
	Last       float64 `json:"last"`       // last non-NaN value
	Change     float64 `json:"change"`     // Last - First
	ChangePct  float64 `json:"change_pct"` // (Last-First)/First * 100
}

// Summarize computes descriptive statistics over raw observations.
// NaN values are excluded from all numeric computations but counted, so
// a summary can be taken before the series is cleaned.
func Summarize(seriesID string, obs []model.Observation) Summary {
	s := Summary{SeriesID: seriesID, Count: len(obs)}

	var vals []float64
	for _, o := range obs {
		if o.IsMissing() {
			s.Missing++
		} else {
			vals = append(vals, o.Value)
		}
	}
	if s.Count > 0 {
		s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	}
	if len(vals) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Max = nan, nan, nan, nan
		s.Median, s.P25, s.P75, s.Skew = nan, nan, nan, nan
		s.First, s.Last, s.Change, s.ChangePct = nan, nan, nan, nan
		return s
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Median = anomaly.QuantileSorted(sorted, 0.50)
	s.P25 = anomaly.QuantileSorted(sorted, 0.25)
	s.P75 = anomaly.QuantileSorted(sorted, 0.75)

	if len(vals) < 2 {
		s.Mean = vals[0]
	} else {
		s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	}
	if len(vals) >= 3 && s.Std > 0 {
		s.Skew = stat.Skew(vals, nil)
	}

	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if s.First != 0 {
		s.ChangePct = s.Change / math.Abs(s.First) * 100
	} else {
		s.ChangePct = math.NaN()
	}
	return s
}

// summaryJSON mirrors Summary with undefined statistics as null.
type summaryJSON struct {
	SeriesID   string   `json:"series_id"`
	Count      int      `json:"count"`
	Missing    int      `json:"missing"`
	MissingPct float64  `json:"missing_pct"`
	Mean       *float64 `json:"mean"`
	Std        *float64 `json:"std"`
	Min        *float64 `json:"min"`
	P25        *float64 `json:"p25"`
	Median     *float64 `json:"median"`
	P75        *float64 `json:"p75"`
	Max        *float64 `json:"max"`
	Skew       *float64 `json:"skew"`
	First      *float64 `json:"first"`
	Last       *float64 `json:"last"`
	Change     *float64 `json:"change"`
	ChangePct  *float64 `json:"change_pct"`
}

// MarshalJSON writes NaN statistics (all-missing input, zero first value)
// as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	n := model.Nullable
	return json.Marshal(summaryJSON{
		SeriesID: s.SeriesID, Count: s.Count, Missing: s.Missing, MissingPct: s.MissingPct,
		Mean: n(s.Mean), Std: n(s.Std), Min: n(s.Min), P25: n(s.P25),
		Median: n(s.Median), P75: n(s.P75), Max: n(s.Max), Skew: n(s.Skew),
		First: n(s.First), Last: n(s.Last), Change: n(s.Change), ChangePct: n(s.ChangePct),
	})
}

// UnmarshalJSON reads null statistics back as NaN.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var aux summaryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f := model.FromNullable
	*s = Summary{
		SeriesID: aux.SeriesID, Count: aux.Count, Missing: aux.Missing, MissingPct: aux.MissingPct,
		Mean: f(aux.Mean), Std: f(aux.Std), Min: f(aux.Min), P25: f(aux.P25),
		Median: f(aux.Median), P75: f(aux.P75), Max: f(aux.Max), Skew: f(aux.Skew),
		First: f(aux.First), Last: f(aux.Last), Change: f(aux.Change), ChangePct: f(aux.ChangePct),
	}
	return nil
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	SeriesID     string      `json:"series_id"`
	Method       TrendMethod `json:"method"`
	Slope        float64     `json:"slope"` // units per day
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r2"`
	Direction    string      `json:"direction"`      // "up", "down", "flat"
	SlopePerYear float64     `json:"slope_per_year"` // slope * 365.25
}

// Trend fits a straight line to s with x measured in days since the first
// observation.
func Trend(s *model.Series, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{SeriesID: s.ID(), Method: method}
	if method != TrendLinear && method != TrendTheilSen {
		return tr, model.InvalidParameter("trend", "unknown method %q (want linear or theil-sen)", method)
	}
	if s.Len() < 2 {
		return tr, model.InsufficientData("trend", "need at least 2 observations, got %d", s.Len())
	}

	dates := s.Dates()
	ys := s.Values()
	xs := make([]float64, len(dates))
	for i, d := range dates {
		xs[i] = d.Sub(dates[0]).Hours() / 24
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(xs, ys)
		// Intercept through the centroid.
		tr.Intercept = stat.Mean(ys, nil) - tr.Slope*stat.Mean(xs, nil)
	default:
		tr.Intercept, tr.Slope = stat.LinearRegression(xs, ys, nil, false)
	}

	tr.R2 = r2(xs, ys, tr.Slope, tr.Intercept)
	tr.SlopePerYear = tr.Slope * 365.25

	switch {
	case tr.SlopePerYear > 0.01:
		tr.Direction = "up"
	case tr.SlopePerYear < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Autocorrelation ──────────────────────────────────────────────────────────

// ACFResult holds sample autocorrelations for lags 0..MaxLag together with
// the approximate 95% band ±1.96/√n.
type ACFResult struct {
	SeriesID    string    `json:"series_id"`
	MaxLag      int       `json:"max_lag"`
	ACF         []float64 `json:"acf"`
	PACF        []float64 `json:"pacf"`
	ConfBound   float64   `json:"conf_bound"`
	Significant []int     `json:"significant"` // lags >= 1 whose |ACF| exceeds the band
}

// ACF computes the autocorrelation and partial autocorrelation of s.
// maxLag <= 0 selects min(10*log10(n), n-1).
func ACF(s *model.Series, maxLag int) (ACFResult, error) {
	const op = "acf"
	n := s.Len()
	if n < 2 {
		return ACFResult{}, model.InsufficientData(op, "need at least 2 observations, got %d", n)
	}
	if maxLag <= 0 {
		maxLag = int(10 * math.Log10(float64(n)))
	}
	if maxLag >= n {
		maxLag = n - 1
	}

	x := s.Values()
	mean := stat.Mean(x, nil)
	var denom float64
	for _, v := range x {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return ACFResult{}, model.DegenerateInput(op, "series has zero variance")
	}

	acf := make([]float64, maxLag+1)
	for k := range acf {
		var sum float64
		for i := k; i < n; i++ {
			sum += (x[i] - mean) * (x[i-k] - mean)
		}
		acf[k] = sum / denom
	}

	res := ACFResult{
		SeriesID:  s.ID(),
		MaxLag:    maxLag,
		ACF:       acf,
		PACF:      durbinLevinson(acf),
		ConfBound: 1.96 / math.Sqrt(float64(n)),
	}
	for k := 1; k < len(acf); k++ {
		if math.Abs(acf[k]) > res.ConfBound {
			res.Significant = append(res.Significant, k)
		}
	}
	return res, nil
}

// durbinLevinson derives partial autocorrelations from acf[0..m].
func durbinLevinson(acf []float64) []float64 {
	m := len(acf) - 1
	pacf := make([]float64, m+1)
	pacf[0] = 1
	if m < 1 {
		return pacf
	}
	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	prev[1] = acf[1]
	pacf[1] = acf[1]
	for k := 2; k <= m; k++ {
		num, den := acf[k], 1.0
		for j := 1; j < k; j++ {
			num -= prev[j] * acf[k-j]
			den -= prev[j] * acf[j]
		}
		if den == 0 {
			break
		}
		cur[k] = num / den
		for j := 1; j < k; j++ {
			cur[j] = prev[j] - cur[k]*prev[k-j]
		}
		pacf[k] = cur[k]
		prev, cur = cur, prev
	}
	return pacf
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func theilSenSlope(xs, ys []float64) float64 {
	var slopes []float64
	for i := range xs {
		for j := i + 1; j < len(xs); j++ {
			dx := xs[j] - xs[i]
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (ys[j]-ys[i])/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return anomaly.QuantileSorted(slopes, 0.50)
}

func r2(xs, ys []float64, slope, intercept float64) float64 {
	yMean := stat.Mean(ys, nil)
	var ssTot, ssRes float64
	for i, y := range ys {
		pred := slope*xs[i] + intercept
		ssTot += (y - yMean) * (y - yMean)
		ssRes += (y - pred) * (y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}
