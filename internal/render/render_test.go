package render_test

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/tsprep/internal/analyze"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/render"
	"github.com/derickschaefer/tsprep/internal/spectral"
	"github.com/derickschaefer/tsprep/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func seriesResult() *model.Result {
	return &model.Result{
		Kind: model.KindSeriesData,
		Data: model.SeriesData{SeriesID: "X", Obs: []model.Observation{
			{Date: day(1), Value: 1.5, ValueRaw: "1.5"},
			{Date: day(2), Value: math.NaN(), ValueRaw: "."},
			{Date: day(3), Value: 4, ValueRaw: "4"},
		}},
	}
}

func renderString(t *testing.T, res *model.Result, format string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, res, format))
	return buf.String()
}

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

// ─── Table ────────────────────────────────────────────────────────────────────

func TestTableSeriesData(t *testing.T) {
	withoutColor(t)
	out := renderString(t, seriesResult(), render.FormatTable)
	assert.Contains(t, out, "SERIES")
	assert.Contains(t, out, "2024-01-01")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "4.0", "integers keep one decimal place")
	assert.Contains(t, out, " . ", "missing values render as a dot")
}

func TestTableStationarityVerdict(t *testing.T) {
	withoutColor(t)
	res := &model.Result{Kind: model.KindStationarity, Data: model.StationarityResult{
		SeriesID:       "X",
		Test:           "adf",
		Statistic:      -1.2,
		PValue:         0.67,
		CriticalValues: map[string]float64{"1%": -3.5, "5%": -2.9, "10%": -2.6},
		Regression:     "c",
	}}
	out := renderString(t, res, render.FormatTable)
	assert.Contains(t, out, "non-stationary")
	assert.Contains(t, out, "Critical 5%")
	assert.Contains(t, out, "-2.9")
}

func TestTableHighlightsAnomalies(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	res := &model.Result{Kind: model.KindAnomalies, Data: model.AnomalyReport{
		SeriesID:  "X",
		Method:    "iqr",
		Total:     10,
		Anomalies: []model.FlaggedPoint{{Index: 7, Date: day(8), Value: 99}},
	}}
	out := renderString(t, res, render.FormatTable)
	assert.Contains(t, out, "iqr: 1 of 10 flagged")
	assert.Contains(t, out, "\x1b[", "flagged rows should carry ANSI color")
}

func TestTableSpectrumWithCoefficients(t *testing.T) {
	withoutColor(t)
	res := &model.Result{Kind: model.KindSpectrum, Data: model.Spectrum{
		SeriesID:     "X",
		Kind:         model.SpectrumFFT,
		N:            4,
		Points:       []model.SpectrumPoint{{Frequency: 0}, {Frequency: 0.25, Power: 2}, {Frequency: 0.5}},
		Coefficients: []complex128{0, complex(0, -2), 0},
	}}
	out := renderString(t, res, render.FormatTable)
	assert.Contains(t, out, "RE")
	assert.Contains(t, out, "IM")
	assert.Contains(t, out, "-2.0")
}

func TestTableFallbackJSON(t *testing.T) {
	res := &model.Result{Kind: "custom", Data: map[string]int{"a": 1}}
	out := renderString(t, res, render.FormatTable)
	assert.Contains(t, out, `"kind": "custom"`)
}

// ─── JSON / JSONL ─────────────────────────────────────────────────────────────

func TestJSONEnvelopeWithNaN(t *testing.T) {
	res := &model.Result{Kind: model.KindSmoothed, Data: model.SmoothedSeries{
		SeriesID: "X", Method: "ma",
		Dates:  []time.Time{day(1), day(2)},
		Values: model.Floats{math.NaN(), 2},
		Valid:  []bool{false, true},
	}}
	out := renderString(t, res, render.FormatJSON)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "smoothed", env["kind"])
	assert.Contains(t, out, "null")
}

func TestJSONSpectrumKeepsCoefficients(t *testing.T) {
	obs := make([]model.Observation, 4)
	for i, v := range []float64{0, 1, 0, -1} {
		obs[i] = model.Observation{Date: day(i + 1), Value: v}
	}
	s, err := model.NewSeries("X", obs)
	require.NoError(t, err)
	sp, err := spectral.FFTSpectrum(s)
	require.NoError(t, err)

	out := renderString(t, &model.Result{Kind: model.KindSpectrum, Data: sp}, render.FormatJSON)
	var env struct {
		Data model.Spectrum `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	require.Len(t, env.Data.Coefficients, 3)
	assert.InDelta(t, 0, real(env.Data.Coefficients[1]), 1e-9)
	assert.InDelta(t, -2, imag(env.Data.Coefficients[1]), 1e-9)
	assert.InDelta(t, 2, env.Data.Points[1].Power, 1e-9)
}

func TestJSONLSmoothedCarriesValid(t *testing.T) {
	res := &model.Result{Kind: model.KindSmoothed, Data: model.SmoothedSeries{
		SeriesID: "X", Method: "ma",
		Dates:  []time.Time{day(1), day(2)},
		Values: model.Floats{math.NaN(), 2},
		Valid:  []bool{false, true},
	}}
	lines := strings.Split(strings.TrimSpace(renderString(t, res, render.FormatJSONL)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"value":null`)
	assert.Contains(t, lines[0], `"valid":false`)
	assert.Contains(t, lines[1], `"valid":true`)
}

func TestJSONLDecomposition(t *testing.T) {
	res := &model.Result{Kind: model.KindDecomposition, Data: model.Decomposition{
		SeriesID: "X", Model: model.Additive, Period: 2,
		Dates:    []time.Time{day(1), day(2)},
		Observed: model.Floats{1, 2},
		Trend:    model.Floats{math.NaN(), 1.5},
		Seasonal: model.Floats{-0.5, 0.5},
		Residual: model.Floats{math.NaN(), 0},
	}}
	lines := strings.Split(strings.TrimSpace(renderString(t, res, render.FormatJSONL)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"trend":null`)
	assert.Contains(t, lines[1], `"trend":1.5`)
}

func TestJSONLAnomaliesOnlyFlagged(t *testing.T) {
	res := &model.Result{Kind: model.KindAnomalies, Data: []model.AnomalyReport{
		{SeriesID: "X", Method: "iqr", Total: 5, Anomalies: []model.FlaggedPoint{{Index: 1, Date: day(2), Value: 50}}},
		{SeriesID: "X", Method: "zscore", Total: 5},
	}}
	lines := strings.Split(strings.TrimSpace(renderString(t, res, render.FormatJSONL)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"method":"iqr"`)
	assert.Contains(t, lines[0], `"anomaly":true`)
}

// ─── CSV / TSV / Markdown ─────────────────────────────────────────────────────

func TestCSVSeriesData(t *testing.T) {
	out := renderString(t, seriesResult(), render.FormatCSV)
	want := "series,date,value\nX,2024-01-01,1.5\nX,2024-01-02,\nX,2024-01-03,4\n"
	assert.Equal(t, want, out)
}

func TestTSVSummary(t *testing.T) {
	res := &model.Result{Kind: model.KindSummary, Data: analyze.Summary{SeriesID: "X", Count: 3, Mean: 2}}
	out := renderString(t, res, render.FormatTSV)
	assert.True(t, strings.HasPrefix(out, "field\tvalue\n"))
	assert.Contains(t, out, "Mean\t2\n")
}

func TestMarkdownSeriesList(t *testing.T) {
	res := &model.Result{Kind: model.KindSeriesList, Data: []store.SeriesInfo{
		{Name: "a|b", Count: 3, First: day(1), Last: day(3)},
	}}
	out := renderString(t, res, render.FormatMD)
	assert.Contains(t, out, "| NAME | SOURCE |")
	assert.Contains(t, out, `a\|b`)
	assert.Contains(t, out, "---:")
}

// ─── Parquet ──────────────────────────────────────────────────────────────────

func TestParquetSeriesData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, seriesResult(), render.FormatParquet))

	reader := parquet.NewGenericReader[render.ObsRow](bytes.NewReader(buf.Bytes()))
	defer reader.Close()
	rows := make([]render.ObsRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, 3, n)
	require.NotNil(t, rows[0].Value)
	assert.Equal(t, 1.5, *rows[0].Value)
	assert.Nil(t, rows[1].Value, "missing value should be null")
	assert.True(t, rows[2].Date.Equal(day(3)))
}

func TestParquetRejectsScalarKinds(t *testing.T) {
	res := &model.Result{Kind: model.KindStationarity, Data: model.StationarityResult{}}
	var buf bytes.Buffer
	assert.Error(t, render.Render(&buf, res, render.FormatParquet))
}

// ─── Footer ───────────────────────────────────────────────────────────────────

func TestPrintFooter(t *testing.T) {
	res := &model.Result{Warnings: []string{"dropped 2 missing values"}, Stats: model.ResultStats{Items: 5, DurationMs: 3}}
	var buf bytes.Buffer
	render.PrintFooter(&buf, res, true)
	assert.Contains(t, buf.String(), "dropped 2 missing values")
	assert.Contains(t, buf.String(), "5 items")
}

func TestValidFormat(t *testing.T) {
	assert.True(t, render.ValidFormat("parquet"))
	assert.False(t, render.ValidFormat("xml"))
}
