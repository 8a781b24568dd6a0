package model_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/tsprep/internal/model"
)

func monthly(year, month int, values ...float64) []model.Observation {
	out := make([]model.Observation, len(values))
	for i, v := range values {
		out[i] = model.Observation{
			Date:  time.Date(year, time.Month(month+i), 1, 0, 0, 0, 0, time.UTC),
			Value: v,
		}
	}
	return out
}

// ─── NewSeries ────────────────────────────────────────────────────────────────

func TestNewSeriesValid(t *testing.T) {
	s, err := model.NewSeries("X", monthly(2020, 1, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, "X", s.ID())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2, 3}, s.Values())
	assert.Equal(t, 2.0, s.At(1).Value)
}

func TestNewSeriesRejects(t *testing.T) {
	cases := map[string][]model.Observation{
		"empty": nil,
		"nan":   monthly(2020, 1, 1, math.NaN(), 3),
		"inf":   monthly(2020, 1, 1, math.Inf(1)),
		"unordered": {
			{Date: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), Value: 1},
			{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 2},
		},
		"duplicate": {
			{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1},
			{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 2},
		},
	}
	for name, obs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := model.NewSeries("X", obs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidParameter), "got %v", err)
		})
	}
}

func TestSeriesAccessorsCopy(t *testing.T) {
	s, err := model.NewSeries("X", monthly(2020, 1, 1, 2, 3))
	require.NoError(t, err)
	v := s.Values()
	v[0] = 99
	assert.Equal(t, 1.0, s.Values()[0])
}

func TestWithValues(t *testing.T) {
	s, err := model.NewSeries("X", monthly(2020, 1, 1, 2, 3))
	require.NoError(t, err)

	w, err := s.WithValues([]float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, s.Dates(), w.Dates())
	assert.Equal(t, []float64{4, 5, 6}, w.Values())

	_, err = s.WithValues([]float64{1})
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

// ─── Spacing ──────────────────────────────────────────────────────────────────

func TestSpacingMonthly(t *testing.T) {
	s, err := model.NewSeries("M", monthly(2020, 1, 1, 2, 3, 4, 5))
	require.NoError(t, err)
	sp := s.Spacing()
	assert.True(t, sp.Regular)
	assert.Equal(t, 1, sp.Months)
}

func TestSpacingDaily(t *testing.T) {
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := model.FromValues("D", start, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	sp := s.Spacing()
	assert.True(t, sp.Regular)
	assert.Equal(t, 24*time.Hour, sp.Duration)
}

func TestSpacingIrregular(t *testing.T) {
	obs := []model.Observation{
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1},
		{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Value: 2},
		{Date: time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), Value: 3},
	}
	s, err := model.NewSeries("I", obs)
	require.NoError(t, err)
	assert.False(t, s.Regular())
}

// ─── Errors ───────────────────────────────────────────────────────────────────

func TestOpErrorShape(t *testing.T) {
	err := model.InsufficientData("adf", "need %d points", 10)
	assert.Equal(t, "adf: need 10 points", err.Error())
	assert.ErrorIs(t, err, model.ErrInsufficientData)
	assert.NotErrorIs(t, err, model.ErrInvalidParameter)
	assert.Equal(t, "InsufficientData", model.ErrorKind(err))
	assert.Equal(t, "error", model.ErrorKind(errors.New("x")))
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func TestFloatsJSONNaN(t *testing.T) {
	b, err := json.Marshal(model.Floats{1.5, math.NaN(), 3})
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,3]", string(b))

	var back model.Floats
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 3)
	assert.Equal(t, 1.5, back[0])
	assert.True(t, math.IsNaN(back[1]))
	assert.Equal(t, 3.0, back[2])
}

func TestObservationJSONNaN(t *testing.T) {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	b, err := json.Marshal(model.SeriesData{
		SeriesID: "X",
		Obs:      []model.Observation{{Date: d, Value: math.NaN(), ValueRaw: "."}, {Date: d, Value: 2}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"value":null`)

	var back model.SeriesData
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back.Obs, 2)
	assert.True(t, back.Obs[0].IsMissing())
	assert.Equal(t, ".", back.Obs[0].ValueRaw)
	assert.Equal(t, 2.0, back.Obs[1].Value)
	assert.True(t, back.Obs[1].Date.Equal(d))
}

func TestReconstruct(t *testing.T) {
	d := model.Decomposition{
		Model:    model.Multiplicative,
		Trend:    model.Floats{2, 4},
		Seasonal: model.Floats{0.5, 2},
		Residual: model.Floats{1, 1},
	}
	assert.Equal(t, []float64{1, 8}, d.Reconstruct())
}

func TestSmoothedDefined(t *testing.T) {
	ss := model.SmoothedSeries{
		SeriesID: "S",
		Dates:    []time.Time{time.Unix(0, 0), time.Unix(60, 0), time.Unix(120, 0)},
		Values:   model.Floats{math.NaN(), 1, 2},
		Valid:    []bool{false, true, true},
	}
	s, err := ss.Defined()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, s.Values())
}

func TestSpectrumPeakSkipsDC(t *testing.T) {
	sp := model.Spectrum{Points: []model.SpectrumPoint{
		{Frequency: 0, Power: 100},
		{Frequency: 0.25, Power: 3},
		{Frequency: 0.5, Power: 7},
	}}
	p, ok := sp.Peak()
	require.True(t, ok)
	assert.Equal(t, 0.5, p.Frequency)
}

func TestSpectrumJSONKeepsCoefficients(t *testing.T) {
	sp := model.Spectrum{
		SeriesID:     "X",
		Kind:         model.SpectrumFFT,
		N:            4,
		Points:       []model.SpectrumPoint{{Frequency: 0, Power: 0}, {Frequency: 0.25, Power: 2}, {Frequency: 0.5, Power: 0}},
		Coefficients: []complex128{0, complex(0, -2), 0},
	}
	b, err := json.Marshal(sp)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"coefficients":[[0,0],[0,-2],[0,0]]`)

	var back model.Spectrum
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, sp, back)
}
