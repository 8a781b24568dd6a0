// Package model defines the canonical data types used throughout tsprep.
// The analysis packages consume a validated Series and return the value
// types below; the CLI wraps every payload in a Result envelope.
package model

import (
	"math"
	"time"
)

// ─── Observations ─────────────────────────────────────────────────────────────

// Observation is a single data point as it travels through the pipe format.
// Value is NaN when the raw value is "." or empty (missing data).
// ValueRaw preserves the original text of the value when it was parsed.
type Observation struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	ValueRaw string    `json:"value_raw"`
}

// IsMissing returns true if the observation value is NaN (missing data).
func (o Observation) IsMissing() bool {
	return math.IsNaN(o.Value)
}

// SeriesData bundles raw observations with an identifier. Unlike Series it
// may contain missing values and is not validated.
type SeriesData struct {
	SeriesID string        `json:"series_id"`
	Source   string        `json:"source,omitempty"`
	Obs      []Observation `json:"observations"`
}

// ─── Analysis results ─────────────────────────────────────────────────────────

// SmoothedSeries is the output of a smoothing filter. It always has the same
// length as its input. Positions where the filter is undefined hold NaN and
// Valid[i] == false.
type SmoothedSeries struct {
	SeriesID string      `json:"series_id"`
	Method   string      `json:"method"`
	Dates    []time.Time `json:"dates"`
	Values   Floats      `json:"values"`
	Valid    []bool      `json:"valid"`
}

// Len returns the number of positions in the smoothed output.
func (s SmoothedSeries) Len() int { return len(s.Values) }

// Observations returns the smoothed values paired with their timestamps.
// Undefined positions carry NaN.
func (s SmoothedSeries) Observations() []Observation {
	out := make([]Observation, len(s.Values))
	for i, v := range s.Values {
		out[i] = Observation{Date: s.Dates[i], Value: v, ValueRaw: FormatRaw(v)}
	}
	return out
}

// Defined returns a Series made of the defined positions only, ready to be
// fed into a detector or another filter.
func (s SmoothedSeries) Defined() (*Series, error) {
	obs := make([]Observation, 0, len(s.Values))
	for i, v := range s.Values {
		if s.Valid[i] {
			obs = append(obs, Observation{Date: s.Dates[i], Value: v})
		}
	}
	return NewSeries(s.SeriesID, obs)
}

// Mask marks flagged points, one entry per input point.
type Mask []bool

// Count returns the number of flagged points.
func (m Mask) Count() int {
	n := 0
	for _, f := range m {
		if f {
			n++
		}
	}
	return n
}

// Indices returns the positions of flagged points in ascending order.
func (m Mask) Indices() []int {
	out := make([]int, 0, m.Count())
	for i, f := range m {
		if f {
			out = append(out, i)
		}
	}
	return out
}

// FlaggedPoint is one anomalous observation.
type FlaggedPoint struct {
	Index int       `json:"index"`
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// AnomalyReport is the CLI payload for a detector run.
type AnomalyReport struct {
	SeriesID  string             `json:"series_id"`
	Method    string             `json:"method"`
	Params    map[string]float64 `json:"params"`
	Total     int                `json:"total"`
	Mask      Mask               `json:"mask"`
	Anomalies []FlaggedPoint     `json:"anomalies"`
}

// DecompositionModel selects how the components combine.
type DecompositionModel string

const (
	Additive       DecompositionModel = "additive"
	Multiplicative DecompositionModel = "multiplicative"
)

// Decomposition holds trend, seasonal and residual components aligned
// index-for-index with the decomposed series. Undefined positions are NaN.
type Decomposition struct {
	SeriesID string             `json:"series_id"`
	Model    DecompositionModel `json:"model"`
	Period   int                `json:"period"`
	Dates    []time.Time        `json:"dates"`
	Observed Floats             `json:"observed"`
	Trend    Floats             `json:"trend"`
	Seasonal Floats             `json:"seasonal"`
	Residual Floats             `json:"residual"`
}

// Reconstruct recombines the components: trend+seasonal+residual for the
// additive model, trend*seasonal*residual for the multiplicative one.
func (d Decomposition) Reconstruct() []float64 {
	out := make([]float64, len(d.Trend))
	for i := range out {
		if d.Model == Multiplicative {
			out[i] = d.Trend[i] * d.Seasonal[i] * d.Residual[i]
		} else {
			out[i] = d.Trend[i] + d.Seasonal[i] + d.Residual[i]
		}
	}
	return out
}

// SpectrumPoint is one (frequency, power) pair. Frequency is in cycles per
// sample, k/N.
type SpectrumPoint struct {
	Frequency float64 `json:"frequency"`
	Power     float64 `json:"power"`
}

// Spectrum kinds.
const (
	SpectrumPeriodogram = "periodogram"
	SpectrumFFT         = "fft"
)

// Spectrum is a one-sided frequency-domain view of an evenly spaced series.
// Points[k] and Coefficients[k] correspond to frequency k/N for k = 0..N/2.
type Spectrum struct {
	SeriesID     string          `json:"series_id"`
	Kind         string          `json:"kind"`
	N            int             `json:"n"`
	Points       []SpectrumPoint `json:"points"`
	Coefficients []complex128    `json:"coefficients,omitempty"` // see MarshalJSON
}

// Peak returns the non-DC point with the largest power. ok is false when the
// spectrum has no point above frequency zero.
func (s Spectrum) Peak() (SpectrumPoint, bool) {
	best := -1
	for k := 1; k < len(s.Points); k++ {
		if best < 0 || s.Points[k].Power > s.Points[best].Power {
			best = k
		}
	}
	if best < 0 {
		return SpectrumPoint{}, false
	}
	return s.Points[best], true
}

// StationarityResult is the outcome of a unit-root test.
type StationarityResult struct {
	SeriesID       string             `json:"series_id"`
	Test           string             `json:"test"`
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"p_value"`
	CriticalValues map[string]float64 `json:"critical_values"` // "1%", "5%", "10%"
	LagsUsed       int                `json:"lags_used"`
	NObs           int                `json:"nobs"`
	Regression     string             `json:"regression"`
	AutoLag        string             `json:"autolag,omitempty"`
	ICBest         float64            `json:"ic_best,omitempty"`
	Stationary     bool               `json:"stationary"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries timing metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindSeriesData    = "series_data"
	KindSmoothed      = "smoothed"
	KindAnomalies     = "anomalies"
	KindDecomposition = "decomposition"
	KindSpectrum      = "spectrum"
	KindStationarity  = "stationarity"
	KindSummary       = "summary"
	KindTrend         = "trend"
	KindACF           = "acf"
	KindSeriesList    = "series_list"
	KindRunList       = "run_list"
)
