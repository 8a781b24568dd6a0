package model

import (
	"math"
	"time"
)

// Series is an immutable, validated time-indexed sequence of finite values.
// Every analysis package consumes a *Series; construct one with NewSeries.
type Series struct {
	id     string
	dates  []time.Time
	values []float64
}

// NewSeries validates obs and returns a Series over a private copy of it.
// obs must be non-empty, strictly increasing in date, and hold no NaN or
// infinite values. Drop or fill missing values first (see transform).
func NewSeries(id string, obs []Observation) (*Series, error) {
	const op = "series"
	if len(obs) == 0 {
		return nil, InvalidParameter(op, "no observations")
	}
	s := &Series{
		id:     id,
		dates:  make([]time.Time, len(obs)),
		values: make([]float64, len(obs)),
	}
	for i, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, InvalidParameter(op, "non-finite value at index %d (%s)", i, o.Date.Format("2006-01-02"))
		}
		if i > 0 && !o.Date.After(obs[i-1].Date) {
			return nil, InvalidParameter(op, "timestamps not strictly increasing at index %d (%s)", i, o.Date.Format("2006-01-02"))
		}
		s.dates[i] = o.Date
		s.values[i] = o.Value
	}
	return s, nil
}

// FromValues builds a Series over an index of consecutive days starting at
// start. Convenient for tests and sample-indexed data.
func FromValues(id string, start time.Time, values []float64) (*Series, error) {
	obs := make([]Observation, len(values))
	for i, v := range values {
		obs[i] = Observation{Date: start.AddDate(0, 0, i), Value: v}
	}
	return NewSeries(id, obs)
}

// ID returns the series identifier.
func (s *Series) ID() string { return s.id }

// Len returns the number of points.
func (s *Series) Len() int { return len(s.values) }

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Dates returns a copy of the timestamps.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// At returns the i-th observation.
func (s *Series) At(i int) Observation {
	return Observation{Date: s.dates[i], Value: s.values[i], ValueRaw: FormatRaw(s.values[i])}
}

// Observations returns the series as pipe-format observations.
func (s *Series) Observations() []Observation {
	out := make([]Observation, len(s.values))
	for i := range s.values {
		out[i] = s.At(i)
	}
	return out
}

// WithValues returns a new Series with the same id and index and the given
// values. The values are validated like NewSeries does.
func (s *Series) WithValues(values []float64) (*Series, error) {
	if len(values) != len(s.values) {
		return nil, InvalidParameter("series", "got %d values for an index of %d", len(values), len(s.values))
	}
	obs := make([]Observation, len(values))
	for i, v := range values {
		obs[i] = Observation{Date: s.dates[i], Value: v}
	}
	return NewSeries(s.id, obs)
}

// ─── Spacing ──────────────────────────────────────────────────────────────────

// Spacing describes the step between consecutive timestamps. A Series is
// regular when every step is the same Duration, or when every step is the
// same number of calendar Months landing on the same day of month.
type Spacing struct {
	Regular  bool
	Duration time.Duration // set for fixed-duration steps
	Months   int           // set for calendar steps (1 monthly, 3 quarterly, 12 annual)
}

// Spacing reports how the index is spaced. A single-point series is regular.
func (s *Series) Spacing() Spacing {
	if len(s.dates) < 2 {
		return Spacing{Regular: true}
	}

	step := s.dates[1].Sub(s.dates[0])
	fixed := true
	for i := 2; i < len(s.dates); i++ {
		if s.dates[i].Sub(s.dates[i-1]) != step {
			fixed = false
			break
		}
	}
	if fixed {
		return Spacing{Regular: true, Duration: step}
	}

	months := monthsBetween(s.dates[0], s.dates[1])
	if months <= 0 {
		return Spacing{}
	}
	for i := 1; i < len(s.dates); i++ {
		prev, cur := s.dates[i-1], s.dates[i]
		if cur.Day() != prev.Day() || monthsBetween(prev, cur) != months {
			return Spacing{}
		}
		if !prev.AddDate(0, months, 0).Equal(cur) {
			return Spacing{}
		}
	}
	return Spacing{Regular: true, Months: months}
}

// Regular reports whether the index is evenly spaced.
func (s *Series) Regular() bool { return s.Spacing().Regular }

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
