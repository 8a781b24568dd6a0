// Package transform implements the pre-cleaning operators that turn raw
// pipe observations into something a Series can be built from. Each operator
// is a pure function over a slice of Observations; no side effects, no I/O.
package transform

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/tsprep/internal/model"
)

// ─── Missing values ───────────────────────────────────────────────────────────

// MissingPolicy selects how Prepare treats NaN observations.
type MissingPolicy string

const (
	MissingDrop  MissingPolicy = "drop"
	MissingFill  MissingPolicy = "fill"
	MissingError MissingPolicy = "error"
)

// DropMissing returns obs without NaN observations.
func DropMissing(obs []model.Observation) []model.Observation {
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if !o.IsMissing() {
			out = append(out, o)
		}
	}
	return out
}

// FillLinear replaces interior NaNs by linear interpolation in time between
// the neighbouring known values. Leading and trailing NaNs take the nearest
// known value.
func FillLinear(obs []model.Observation) ([]model.Observation, error) {
	known := make([]int, 0, len(obs))
	for i, o := range obs {
		if !o.IsMissing() {
			known = append(known, i)
		}
	}
	if len(known) == 0 {
		return nil, model.InsufficientData("fill", "no non-missing values to interpolate from")
	}

	out := make([]model.Observation, len(obs))
	copy(out, obs)
	first, last := known[0], known[len(known)-1]
	for i := 0; i < first; i++ {
		out[i] = filled(obs[i], obs[first].Value)
	}
	for i := last + 1; i < len(obs); i++ {
		out[i] = filled(obs[i], obs[last].Value)
	}
	for k := 1; k < len(known); k++ {
		a, b := known[k-1], known[k]
		if b-a < 2 {
			continue
		}
		span := obs[b].Date.Sub(obs[a].Date).Seconds()
		for i := a + 1; i < b; i++ {
			frac := float64(i-a) / float64(b-a)
			if span > 0 {
				frac = obs[i].Date.Sub(obs[a].Date).Seconds() / span
			}
			out[i] = filled(obs[i], obs[a].Value+frac*(obs[b].Value-obs[a].Value))
		}
	}
	return out, nil
}

func filled(o model.Observation, v float64) model.Observation {
	return model.Observation{Date: o.Date, Value: v, ValueRaw: model.FormatRaw(v)}
}

// Prepare applies policy to obs and builds a validated Series. Observations
// are sorted by date first; duplicate dates are still rejected by NewSeries.
func Prepare(id string, obs []model.Observation, policy MissingPolicy) (*model.Series, error) {
	sorted := make([]model.Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	switch policy {
	case MissingDrop, "":
		sorted = DropMissing(sorted)
	case MissingFill:
		var err error
		if sorted, err = FillLinear(sorted); err != nil {
			return nil, err
		}
	case MissingError:
		for _, o := range sorted {
			if o.IsMissing() {
				return nil, model.InvalidParameter("series", "missing value at %s", o.Date.Format("2006-01-02"))
			}
		}
	default:
		return nil, model.InvalidParameter("series", "unknown missing-value policy %q (use drop, fill or error)", policy)
	}
	return model.NewSeries(id, sorted)
}

// ─── Difference ───────────────────────────────────────────────────────────────

// Diff computes the n-th order difference. order=1: v[t]-v[t-1], order=2: diff of diff.
func Diff(obs []model.Observation, order int) ([]model.Observation, error) {
	if order < 1 || order > 2 {
		return nil, model.InvalidParameter("diff", "order must be 1 or 2, got %d", order)
	}
	result := obs
	var err error
	for i := 0; i < order; i++ {
		result, err = diffOnce(result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func diffOnce(obs []model.Observation) ([]model.Observation, error) {
	if len(obs) < 2 {
		return nil, model.InsufficientData("diff", "need at least 2 observations, got %d", len(obs))
	}
	out := make([]model.Observation, 0, len(obs)-1)
	for i := 1; i < len(obs); i++ {
		val := obs[i].Value - obs[i-1].Value // NaN propagates
		out = append(out, model.Observation{
			Date:     obs[i].Date,
			Value:    val,
			ValueRaw: model.FormatRaw(val),
		})
	}
	return out, nil
}

// ─── Log ──────────────────────────────────────────────────────────────────────

// Log computes the natural log of each observation value.
// Non-positive values produce NaN with a warning; NaN inputs stay NaN.
func Log(obs []model.Observation) ([]model.Observation, []string) {
	out := make([]model.Observation, len(obs))
	var warnings []string
	for i, o := range obs {
		val := math.NaN()
		switch {
		case o.IsMissing():
		case o.Value <= 0:
			warnings = append(warnings, fmt.Sprintf("%s: log(%g) is undefined, set to NaN",
				o.Date.Format("2006-01-02"), o.Value))
		default:
			val = math.Log(o.Value)
		}
		out[i] = model.Observation{
			Date:     o.Date,
			Value:    val,
			ValueRaw: model.FormatRaw(val),
		}
	}
	return out, warnings
}

// ─── Resample ─────────────────────────────────────────────────────────────────

// ResampleFreq is the target frequency for resampling.
type ResampleFreq string

const (
	ResampleMonthly   ResampleFreq = "monthly"
	ResampleQuarterly ResampleFreq = "quarterly"
	ResampleAnnual    ResampleFreq = "annual"
)

// ResampleMethod is the aggregation method for resampling.
type ResampleMethod string

const (
	ResampleMean ResampleMethod = "mean"
	ResampleLast ResampleMethod = "last"
	ResampleSum  ResampleMethod = "sum"
)

// Resample aggregates observations to a regular calendar frequency, which
// is what the spectral transforms require. Periods are stamped with their
// first day; NaN values are skipped in aggregation.
func Resample(obs []model.Observation, freq ResampleFreq, method ResampleMethod) ([]model.Observation, error) {
	if len(obs) == 0 {
		return nil, model.InsufficientData("resample", "empty input")
	}
	switch freq {
	case ResampleMonthly, ResampleQuarterly, ResampleAnnual:
	default:
		return nil, model.InvalidParameter("resample", "unknown frequency %q (use monthly, quarterly, annual)", freq)
	}
	switch method {
	case ResampleMean, ResampleLast, ResampleSum:
	default:
		return nil, model.InvalidParameter("resample", "unknown method %q (use mean, last, sum)", method)
	}

	groups := make(map[time.Time][]float64)
	for _, o := range obs {
		start := periodStart(o.Date, freq)
		if _, ok := groups[start]; !ok {
			groups[start] = nil
		}
		if !o.IsMissing() {
			groups[start] = append(groups[start], o.Value)
		}
	}

	starts := make([]time.Time, 0, len(groups))
	for k := range groups {
		starts = append(starts, k)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make([]model.Observation, 0, len(starts))
	for _, k := range starts {
		vals := groups[k]
		val := math.NaN()
		if len(vals) > 0 {
			switch method {
			case ResampleMean:
				val = stat.Mean(vals, nil)
			case ResampleLast:
				val = vals[len(vals)-1]
			case ResampleSum:
				val = floats.Sum(vals)
			}
		}
		out = append(out, model.Observation{
			Date:     k,
			Value:    val,
			ValueRaw: model.FormatRaw(val),
		})
	}
	return out, nil
}

// periodStart returns the canonical first day of the period containing t.
func periodStart(t time.Time, freq ResampleFreq) time.Time {
	switch freq {
	case ResampleQuarterly:
		q := (t.Month() - 1) / 3
		return time.Date(t.Year(), q*3+1, 1, 0, 0, 0, 0, time.UTC)
	case ResampleAnnual:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// ─── Filter ───────────────────────────────────────────────────────────────────

// FilterOptions describes a date/value filter predicate.
type FilterOptions struct {
	After       time.Time // keep obs with date > After (zero = no lower bound)
	Before      time.Time // keep obs with date < Before (zero = no upper bound)
	MinValue    float64   // keep obs with value >= MinValue (NaN = no lower bound)
	MaxValue    float64   // keep obs with value <= MaxValue (NaN = no upper bound)
	DropMissing bool      // drop NaN observations
}

// Filter returns observations matching all non-zero criteria in opts.
func Filter(obs []model.Observation, opts FilterOptions) []model.Observation {
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if !opts.After.IsZero() && !o.Date.After(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !o.Date.Before(opts.Before) {
			continue
		}
		if o.IsMissing() {
			if opts.DropMissing {
				continue
			}
		} else {
			if !math.IsNaN(opts.MinValue) && o.Value < opts.MinValue {
				continue
			}
			if !math.IsNaN(opts.MaxValue) && o.Value > opts.MaxValue {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}
