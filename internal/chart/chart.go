// Package chart provides ASCII terminal chart rendering for time series data.
// Three renderers are available:
//
//   - Bar: horizontal bar chart, one bar per observation, for short or
//     resampled series
//   - SpectrumBar: the same bars keyed by frequency, for spectra
//   - Plot: multi-line chart with labeled axes and optional anomaly markers
//
// All renderers treat NaN values as gaps, not zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/derickschaefer/tsprep/internal/model"
)

// MarkRune is drawn at the position of a flagged observation.
const MarkRune = '●'

var markColor = color.New(color.FgRed, color.Bold)

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from the terminal, then $COLUMNS, falling back to 80.
	Width int
	// MaxBars is the maximum number of bars to render. Longer inputs keep
	// the last MaxBars bars. If 0, no limit is applied.
	MaxBars int
}

// bar is one labeled value.
type bar struct {
	label string
	value float64
}

// Bar renders a horizontal bar chart of obs to w, one bar per observation.
//
// Best used with low-frequency or resampled data. For daily series, pipe
// through `transform resample` first.
//
// Output example:
//
//	SENSOR  2020 – 2024
//	2020  3.5  ████████████
//	2021  5.4  ████████████████████
//	2022  3.7  █████████████
func Bar(w io.Writer, seriesID string, obs []model.Observation, opts BarOptions) error {
	var valid []model.Observation
	for _, o := range obs {
		if !math.IsNaN(o.Value) {
			valid = append(valid, o)
		}
	}
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no non-NaN observations to render")
	}
	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[len(valid)-opts.MaxBars:]
	}
	if len(valid) > 60 {
		fmt.Fprintf(w, "⚠  %d observations; consider piping through: tsprep transform resample --freq annual --method mean\n\n", len(valid))
	}

	layout := dateLayout(valid)
	bars := make([]bar, len(valid))
	for i, o := range valid {
		bars[i] = bar{label: o.Date.Format(layout), value: o.Value}
	}
	header := fmt.Sprintf("%s  %s – %s", seriesID, bars[0].label, bars[len(bars)-1].label)
	drawBars(w, header, bars, opts)
	return nil
}

// SpectrumBar renders the power of each non-DC frequency bin as a bar,
// labeled with its period in samples. The peak bin is marked.
func SpectrumBar(w io.Writer, sp model.Spectrum, opts BarOptions) error {
	if len(sp.Points) < 2 {
		return fmt.Errorf("chart bar: spectrum has no non-DC bins")
	}
	points := sp.Points[1:]
	if opts.MaxBars > 0 && len(points) > opts.MaxBars {
		points = points[:opts.MaxBars]
	}
	peak, _ := sp.Peak()
	bars := make([]bar, len(points))
	for i, p := range points {
		label := "p=" + formatFloat(1/p.Frequency)
		if p == peak {
			label = "*" + label
		}
		bars[i] = bar{label: label, value: p.Power}
	}
	header := fmt.Sprintf("%s  %s, n=%d (period in samples, * = peak)", sp.SeriesID, sp.Kind, sp.N)
	drawBars(w, header, bars, opts)
	return nil
}

// drawBars lays out labeled bars from a zero baseline.
func drawBars(w io.Writer, header string, bars []bar, opts BarOptions) {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = TermWidth()
	}

	minVal, maxVal := bars[0].value, bars[0].value
	labelWidth, valWidth := 0, 0
	for _, b := range bars {
		minVal = math.Min(minVal, b.value)
		maxVal = math.Max(maxVal, b.value)
		if l := len([]rune(b.label)); l > labelWidth {
			labelWidth = l
		}
		if l := len(formatFloat(b.value)); l > valWidth {
			valWidth = l
		}
	}

	// Bar area width = totalWidth - label - value - separators (4 chars)
	barAreaWidth := totalWidth - labelWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1 // flat series
	}

	hasNeg := minVal < 0
	var zeroPos int // column index of the zero line within bar area
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintln(w, header)
	for _, b := range bars {
		var body string
		if hasNeg {
			body = buildBiBar(b.value, minVal, maxVal, barAreaWidth, zeroPos)
		} else {
			barLen := int(math.Round((b.value - minVal) / valRange * float64(barAreaWidth)))
			if barLen < 1 {
				barLen = 1 // every bar stays visible
			}
			if barLen > barAreaWidth {
				barLen = barAreaWidth
			}
			body = strings.Repeat("█", barLen)
		}
		fmt.Fprintf(w, "%-*s  %*s  %s\n", labelWidth, b.label, valWidth, formatFloat(b.value), body)
	}
}

// buildBiBar renders a bar that may extend left (negative) or right (positive)
// from a zero baseline at zeroPos within a field of width barAreaWidth.
func buildBiBar(val, minVal, maxVal float64, barAreaWidth, zeroPos int) string {
	valRange := maxVal - minVal
	buf := []rune(strings.Repeat(" ", barAreaWidth))

	if zeroPos >= 0 && zeroPos < barAreaWidth {
		buf[zeroPos] = '│'
	}

	if val >= 0 {
		end := zeroPos + int(math.Round(val/valRange*float64(barAreaWidth-1)))
		for i := zeroPos + 1; i <= end && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	} else {
		start := zeroPos - int(math.Round((-val)/valRange*float64(barAreaWidth-1)))
		if start < 0 {
			start = 0
		}
		for i := start; i < zeroPos && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	}
	return string(buf)
}

// dateLayout picks the shortest date layout that distinguishes the
// observations: year for annual data, year-month for month-start data,
// full date otherwise, and a timestamp for sub-daily data.
func dateLayout(obs []model.Observation) string {
	if len(obs) < 2 {
		return "2006-01-02"
	}
	monthStart, annual := true, true
	for i, o := range obs {
		if o.Date.Hour() != 0 || o.Date.Minute() != 0 || o.Date.Second() != 0 {
			return "2006-01-02 15:04"
		}
		if o.Date.Day() != 1 {
			monthStart = false
		}
		if i > 0 && o.Date.Sub(obs[i-1].Date) < 300*24*time.Hour {
			annual = false
		}
	}
	switch {
	case monthStart && annual:
		return "2006"
	case monthStart:
		return "2006-01"
	}
	return "2006-01-02"
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from the terminal, then $COLUMNS, falling back to 80.
	Width int
	// Height is the number of data rows in the chart body (not counting axis labels).
	// If 0, defaults to 12.
	Height int
	// Title overrides the default title (seriesID). Empty = use seriesID.
	Title string
	// Marks flags observations to highlight, index-aligned with obs.
	// A column is marked when any observation sampled into it is flagged.
	Marks []bool
}

// Plot renders a multi-line ASCII chart of obs to w.
func Plot(w io.Writer, seriesID string, obs []model.Observation, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = TermWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	title := opts.Title
	if title == "" {
		title = seriesID
	}
	if opts.Marks != nil && len(opts.Marks) != len(obs) {
		return fmt.Errorf("chart plot: %d marks for %d observations", len(opts.Marks), len(obs))
	}

	var validVals []float64
	for _, o := range obs {
		if !math.IsNaN(o.Value) {
			validVals = append(validVals, o.Value)
		}
	}
	if len(validVals) < 2 {
		return fmt.Errorf("chart plot: need at least 2 non-NaN observations (got %d)", len(validVals))
	}

	minVal, maxVal := validVals[0], validVals[0]
	for _, v := range validVals[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		if l := len(formatFloat(t)); l > yLabelWidth {
			yLabelWidth = l
		}
	}
	yAxisWidth := yLabelWidth + 2 // label + " ┤"

	plotWidth := width - yAxisWidth
	if plotWidth < 10 {
		plotWidth = 10
	}

	cols, marked := sampleCols(obs, opts.Marks, plotWidth)
	grid := buildGrid(cols, minVal, maxVal, height)

	layout := dateLayout(obs)
	fmt.Fprintf(w, "%s  (%s to %s)\n", title, obs[0].Date.Format(layout), obs[len(obs)-1].Date.Format(layout))

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		labelPadded := fmt.Sprintf("%*s", yLabelWidth, label)

		axisCh := "┤"
		if label != "" && math.Abs(minVal) < 1e-9 && row == height-1 {
			axisCh = "┼"
		} else if label == "" {
			axisCh = " "
		}

		var rowSB strings.Builder
		for col := 0; col < plotWidth; col++ {
			if marked[col] && isPoint(grid, row, col, cols, minVal, maxVal, height) {
				rowSB.WriteString(markColor.Sprint(string(MarkRune)))
				continue
			}
			rowSB.WriteRune(grid[row][col])
		}

		fmt.Fprintf(w, "%s%s%s\n", labelPadded, axisCh, rowSB.String())
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(obs, layout, plotWidth))

	if n := countMarks(opts.Marks); n > 0 {
		fmt.Fprintf(w, "%s %s %d flagged\n", strings.Repeat(" ", yLabelWidth), markColor.Sprint(string(MarkRune)), n)
	}
	return nil
}

// isPoint reports whether (row, col) is where column col's value is drawn.
func isPoint(grid [][]rune, row, col int, cols []float64, minVal, maxVal float64, height int) bool {
	v := cols[col]
	if math.IsNaN(v) {
		return false
	}
	r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
	r = max(0, min(r, height-1))
	return r == row && grid[row][col] != ' '
}

func countMarks(marks []bool) int {
	n := 0
	for _, m := range marks {
		if m {
			n++
		}
	}
	return n
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols reduces obs to exactly n columns by sampling.
// Each column holds the average of its bucket, or NaN if all are NaN.
// A column is marked when any of its observations is.
func sampleCols(obs []model.Observation, marks []bool, n int) ([]float64, []bool) {
	total := len(obs)
	cols := make([]float64, n)
	marked := make([]bool, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := (col+1)*total/n - 1
		if hi >= total {
			hi = total - 1
		}
		if hi < lo {
			hi = lo // more columns than observations: repeat
		}
		sum, count := 0.0, 0
		for i := lo; i <= hi && i < total; i++ {
			if !math.IsNaN(obs[i].Value) {
				sum += obs[i].Value
				count++
			}
			if marks != nil && marks[i] {
				marked[col] = true
			}
		}
		if count == 0 {
			cols[col] = math.NaN()
		} else {
			cols[col] = sum / float64(count)
		}
	}
	return cols, marked
}

// rowForValue returns the float row index (0=top=max) for a given value.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid renders columns into a height×width rune grid using
// box-drawing characters to connect adjacent data points.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cols)))
	}

	rowOf := make([]int, len(cols))
	for col, v := range cols {
		if math.IsNaN(v) {
			rowOf[col] = -1 // gap
			continue
		}
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		rowOf[col] = max(0, min(r, height-1))
	}

	for col := 0; col < len(cols); col++ {
		r := rowOf[col]
		if r < 0 {
			continue
		}
		prevRow, nextRow := -2, -2
		if col > 0 {
			prevRow = rowOf[col-1]
		}
		if col < len(cols)-1 {
			nextRow = rowOf[col+1]
		}
		grid[r][col] = joint(prevRow, r, nextRow)

		// Vertical connectors between this row and the previous column's row
		if prevRow >= 0 && prevRow != r {
			lo, hi := min(r, prevRow), max(r, prevRow)
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}
	return grid
}

// joint picks the box-drawing rune for a point at row r given the rows of
// its neighbours (-1 for a gap, -2 for the chart edge).
func joint(prev, r, next int) rune {
	switch {
	case prev == -2 && next == -2:
		return '·'
	case (prev < 0 || prev == r) && (next < 0 || next == r):
		return '─'
	case prev >= 0 && next >= 0 && (prev < r) == (next < r) && prev != r && next != r:
		return '─' // local peak or trough
	case (prev < 0 || prev < r) && next > r:
		return '╭'
	case (prev < 0 || prev > r) && next >= 0 && next < r:
		return '╰'
	case prev >= 0 && prev < r && (next < 0 || next > r):
		return '╮'
	case prev >= 0 && prev > r && (next < 0 || next < r):
		return '╯'
	}
	return '│'
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns 3–4 evenly-spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	nTicks := 4
	if height <= 6 {
		nTicks = 3
	}
	ticks := make([]float64, nTicks)
	for i := 0; i < nTicks; i++ {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(nTicks-1)
	}
	return ticks
}

// xAxisLabels builds a padded string with start, middle, and end date labels.
func xAxisLabels(obs []model.Observation, layout string, plotWidth int) string {
	if len(obs) == 0 {
		return ""
	}
	startLabel := obs[0].Date.Format(layout)
	endLabel := obs[len(obs)-1].Date.Format(layout)
	midLabel := obs[len(obs)/2].Date.Format(layout)

	buf := []rune(strings.Repeat(" ", plotWidth))
	writeAt := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	writeAt(0, startLabel)
	if plotWidth >= 3*len(midLabel)+4 {
		writeAt(plotWidth/2-len(midLabel)/2, midLabel)
	}
	writeAt(plotWidth-len(endLabel), endLabel)
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a float for axis labels: no unnecessary trailing zeros,
// at least one decimal place, compact notation for large/small numbers.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case math.IsInf(v, 0):
		return strconv.FormatFloat(v, 'f', -1, 64)
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// TermWidth returns the width of the terminal on stdout. When stdout is not
// a terminal it falls back to $COLUMNS, then 80.
func TermWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return w
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
