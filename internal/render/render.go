// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
//
// Result.Data always holds a value (not a pointer) of the type matching
// Result.Kind. Kinds without a tabular form fall back to JSON.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/tsprep/internal/analyze"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/pipeline"
	"github.com/derickschaefer/tsprep/internal/store"
	"github.com/derickschaefer/tsprep/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable   = "table"
	FormatJSON    = "json"
	FormatJSONL   = "jsonl"
	FormatCSV     = "csv"
	FormatTSV     = "tsv"
	FormatMD      = "md"
	FormatParquet = "parquet"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD, FormatParquet}

// ValidFormat reports whether f is a known format name.
func ValidFormat(f string) bool {
	for _, v := range Formats {
		if v == f {
			return true
		}
	}
	return false
}

// Highlighting used by table output. Both honour color.NoColor, which the
// CLI sets for --no-color and non-terminal stdout.
var (
	alert = color.New(color.FgRed, color.Bold).SprintFunc()
	okay  = color.New(color.FgGreen).SprintFunc()
)

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	case FormatParquet:
		return renderParquet(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// componentRow is one JSONL line of a decomposition.
type componentRow struct {
	SeriesID string   `json:"series_id"`
	Date     string   `json:"date"`
	Value    *float64 `json:"value"`
	Trend    *float64 `json:"trend"`
	Seasonal *float64 `json:"seasonal"`
	Residual *float64 `json:"residual"`
}

// flaggedRow is one JSONL line of an anomaly report. It is readable as an
// observation by the next command in the pipe.
type flaggedRow struct {
	SeriesID string  `json:"series_id"`
	Method   string  `json:"method"`
	Index    int     `json:"index"`
	Date     string  `json:"date"`
	Value    float64 `json:"value"`
	Anomaly  bool    `json:"anomaly"`
}

// spectrumRow is one JSONL line of a spectrum.
type spectrumRow struct {
	SeriesID  string   `json:"series_id"`
	K         int      `json:"k"`
	Frequency float64  `json:"frequency"`
	Period    *float64 `json:"period"`
	Power     float64  `json:"power"`
	Re        *float64 `json:"re,omitempty"`
	Im        *float64 `json:"im,omitempty"`
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch d := result.Data.(type) {
	case model.SeriesData:
		return pipeline.WriteJSONL(w, d.SeriesID, d.Obs)
	case model.SmoothedSeries:
		return pipeline.WriteAnnotated(w, d.SeriesID, d.Observations(), nil, d.Valid)
	case model.AnomalyReport:
		return encodeFlagged(enc, d)
	case []model.AnomalyReport:
		for _, r := range d {
			if err := encodeFlagged(enc, r); err != nil {
				return err
			}
		}
		return nil
	case model.Decomposition:
		for i, t := range d.Dates {
			row := componentRow{
				SeriesID: d.SeriesID,
				Date:     util.FormatDate(t),
				Value:    ptr(d.Observed[i]),
				Trend:    ptr(d.Trend[i]),
				Seasonal: ptr(d.Seasonal[i]),
				Residual: ptr(d.Residual[i]),
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	case model.Spectrum:
		for k, p := range d.Points {
			row := spectrumRow{SeriesID: d.SeriesID, K: k, Frequency: p.Frequency, Period: ptr(period(p.Frequency)), Power: p.Power}
			if k < len(d.Coefficients) {
				row.Re, row.Im = ptr(real(d.Coefficients[k])), ptr(imag(d.Coefficients[k]))
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	case []store.SeriesInfo:
		for _, s := range d {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	case []store.Run:
		for _, r := range d {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

func encodeFlagged(enc *json.Encoder, r model.AnomalyReport) error {
	for _, p := range r.Anomalies {
		row := flaggedRow{
			SeriesID: r.SeriesID,
			Method:   r.Method,
			Index:    p.Index,
			Date:     util.FormatDate(p.Date),
			Value:    p.Value,
			Anomaly:  true,
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// ─── Tabular form ─────────────────────────────────────────────────────────────

// tabular is the format-neutral shape shared by table, CSV/TSV and markdown
// output. flagged marks rows to highlight in terminal tables.
type tabular struct {
	headers []string
	rows    [][]string
	flagged []bool
	ok      []bool
	right   []bool // right-align numeric columns
	caption string
}

func (t *tabular) add(flag, good bool, cells ...string) {
	t.rows = append(t.rows, cells)
	t.flagged = append(t.flagged, flag)
	t.ok = append(t.ok, good)
}

// tabulate builds the tabular form of result, formatting numbers with num.
// ok is false when the kind has no tabular form.
func tabulate(result *model.Result, num func(float64) string) (*tabular, bool) {
	switch d := result.Data.(type) {
	case model.SeriesData:
		t := &tabular{headers: []string{"SERIES", "DATE", "VALUE"}, right: []bool{false, false, true}}
		for _, o := range d.Obs {
			t.add(false, false, d.SeriesID, util.FormatDate(o.Date), num(o.Value))
		}
		return t, true

	case model.SmoothedSeries:
		t := &tabular{headers: []string{"DATE", "VALUE", "VALID"}, right: []bool{false, true, false}}
		t.caption = fmt.Sprintf("%s smoothed with %s", d.SeriesID, d.Method)
		for i, v := range d.Values {
			t.add(false, false, util.FormatDate(d.Dates[i]), num(v), strconv.FormatBool(d.Valid[i]))
		}
		return t, true

	case model.AnomalyReport:
		return anomalyTable([]model.AnomalyReport{d}, num), true
	case []model.AnomalyReport:
		return anomalyTable(d, num), true

	case model.Decomposition:
		t := &tabular{
			headers: []string{"DATE", "OBSERVED", "TREND", "SEASONAL", "RESIDUAL"},
			right:   []bool{false, true, true, true, true},
			caption: fmt.Sprintf("%s %s decomposition, period %d", d.SeriesID, d.Model, d.Period),
		}
		for i, dt := range d.Dates {
			t.add(false, false, util.FormatDate(dt), num(d.Observed[i]), num(d.Trend[i]), num(d.Seasonal[i]), num(d.Residual[i]))
		}
		return t, true

	case model.Spectrum:
		return spectrumTable(d, num), true

	case model.StationarityResult:
		return stationarityTable(d, num), true

	case analyze.Summary:
		t := kvTable()
		for _, kv := range [][2]string{
			{"Series", d.SeriesID},
			{"Count", strconv.Itoa(d.Count)},
			{"Missing", fmt.Sprintf("%d (%s%%)", d.Missing, util.FormatFixed(d.MissingPct, 1))},
			{"Mean", num(d.Mean)},
			{"Std", num(d.Std)},
			{"Min", num(d.Min)},
			{"P25", num(d.P25)},
			{"Median", num(d.Median)},
			{"P75", num(d.P75)},
			{"Max", num(d.Max)},
			{"Skew", num(d.Skew)},
			{"First", num(d.First)},
			{"Last", num(d.Last)},
			{"Change", num(d.Change)},
			{"Change %", num(d.ChangePct)},
		} {
			t.add(false, false, kv[0], kv[1])
		}
		return t, true

	case analyze.TrendResult:
		t := kvTable()
		for _, kv := range [][2]string{
			{"Series", d.SeriesID},
			{"Method", string(d.Method)},
			{"Slope (per day)", num(d.Slope)},
			{"Slope (per year)", num(d.SlopePerYear)},
			{"Intercept", num(d.Intercept)},
			{"R²", num(d.R2)},
			{"Direction", d.Direction},
		} {
			t.add(false, false, kv[0], kv[1])
		}
		return t, true

	case analyze.ACFResult:
		t := &tabular{
			headers: []string{"LAG", "ACF", "PACF"},
			right:   []bool{true, true, true},
			caption: fmt.Sprintf("%s autocorrelation, 95%% band ±%s", d.SeriesID, util.FormatFixed(d.ConfBound, 4)),
		}
		for lag := 0; lag < len(d.ACF); lag++ {
			pacf := "."
			if lag < len(d.PACF) {
				pacf = num(d.PACF[lag])
			}
			sig := lag > 0 && math.Abs(d.ACF[lag]) > d.ConfBound
			t.add(sig, false, strconv.Itoa(lag), num(d.ACF[lag]), pacf)
		}
		return t, true

	case []store.SeriesInfo:
		t := &tabular{
			headers: []string{"NAME", "SOURCE", "COUNT", "MISSING", "FIRST", "LAST", "SAVED"},
			right:   []bool{false, false, true, true, false, false, false},
		}
		for _, s := range d {
			t.add(false, false, s.Name, s.Source, strconv.Itoa(s.Count), strconv.Itoa(s.Missing),
				formatTime(s.First), formatTime(s.Last), s.SavedAt.Format(time.RFC3339))
		}
		return t, true

	case []store.Run:
		t := &tabular{headers: []string{"ID", "KIND", "COMMAND", "SERIES", "CREATED"}}
		for _, r := range d {
			t.add(false, false, r.ID, r.Kind, r.Command, r.SeriesID, r.CreatedAt.Format(time.RFC3339))
		}
		return t, true
	}
	return nil, false
}

func kvTable() *tabular {
	return &tabular{headers: []string{"FIELD", "VALUE"}}
}

func anomalyTable(reports []model.AnomalyReport, num func(float64) string) *tabular {
	t := &tabular{
		headers: []string{"METHOD", "INDEX", "DATE", "VALUE"},
		right:   []bool{false, true, false, true},
	}
	var parts []string
	for _, r := range reports {
		parts = append(parts, fmt.Sprintf("%s: %d of %d flagged", r.Method, len(r.Anomalies), r.Total))
		for _, p := range r.Anomalies {
			t.add(true, false, r.Method, strconv.Itoa(p.Index), util.FormatDate(p.Date), num(p.Value))
		}
	}
	if len(reports) > 0 {
		t.caption = reports[0].SeriesID + " " + strings.Join(parts, "; ")
	}
	return t
}

func spectrumTable(sp model.Spectrum, num func(float64) string) *tabular {
	t := &tabular{
		headers: []string{"K", "FREQUENCY", "PERIOD", "POWER"},
		right:   []bool{true, true, true, true},
		caption: fmt.Sprintf("%s %s, n=%d", sp.SeriesID, sp.Kind, sp.N),
	}
	withCoef := len(sp.Coefficients) == len(sp.Points) && len(sp.Points) > 0
	if withCoef {
		t.headers = append(t.headers, "RE", "IM")
		t.right = append(t.right, true, true)
	}
	peak, hasPeak := sp.Peak()
	for k, p := range sp.Points {
		cells := []string{strconv.Itoa(k), num(p.Frequency), num(period(p.Frequency)), num(p.Power)}
		if withCoef {
			cells = append(cells, num(real(sp.Coefficients[k])), num(imag(sp.Coefficients[k])))
		}
		t.add(hasPeak && k > 0 && p == peak, false, cells...)
	}
	return t
}

func stationarityTable(r model.StationarityResult, num func(float64) string) *tabular {
	t := kvTable()
	verdict := "stationary"
	if !r.Stationary {
		verdict = "non-stationary (unit root not rejected)"
	}
	rows := [][2]string{
		{"Series", r.SeriesID},
		{"Test", r.Test},
		{"Regression", r.Regression},
		{"Statistic", num(r.Statistic)},
		{"p-value", num(r.PValue)},
		{"Lags used", strconv.Itoa(r.LagsUsed)},
		{"Observations", strconv.Itoa(r.NObs)},
	}
	if r.AutoLag != "" {
		rows = append(rows, [2]string{"Autolag", r.AutoLag}, [2]string{"IC best", num(r.ICBest)})
	}
	for _, level := range []string{"1%", "5%", "10%"} {
		if cv, ok := r.CriticalValues[level]; ok {
			rows = append(rows, [2]string{"Critical " + level, num(cv)})
		}
	}
	for _, kv := range rows {
		t.add(false, false, kv[0], kv[1])
	}
	t.add(!r.Stationary, r.Stationary, "Verdict", verdict)
	return t
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	t, ok := tabulate(result, formatValue)
	if !ok {
		return renderJSON(w, result)
	}
	if t.caption != "" {
		fmt.Fprintln(w, t.caption)
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	if t.right != nil {
		align := make([]int, len(t.right))
		for i, r := range t.right {
			align[i] = tablewriter.ALIGN_LEFT
			if r {
				align[i] = tablewriter.ALIGN_RIGHT
			}
		}
		tw.SetColumnAlignment(align)
	}
	tw.SetAutoWrapText(false)

	for i, row := range t.rows {
		switch {
		case t.flagged[i]:
			row = paint(row, alert)
		case t.ok[i]:
			row = paint(row, okay)
		}
		tw.Append(row)
	}
	tw.Render()
	return nil
}

func paint(row []string, fn func(a ...interface{}) string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = fn(c)
	}
	return out
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	t, ok := tabulate(result, csvValue)
	if !ok {
		// Fallback: serialize as JSON on a single line
		b, err := json.Marshal(result.Data)
		if err != nil {
			return err
		}
		_ = cw.Write([]string{string(b)})
	} else {
		header := make([]string, len(t.headers))
		for i, h := range t.headers {
			header[i] = csvHeader(h)
		}
		_ = cw.Write(header)
		for _, row := range t.rows {
			_ = cw.Write(row)
		}
	}

	cw.Flush()
	return cw.Error()
}

// csvHeader turns a display header into a snake_case column name.
func csvHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	t, ok := tabulate(result, formatValue)
	if !ok {
		return renderJSON(w, result)
	}
	if t.caption != "" {
		fmt.Fprintf(w, "**%s**\n\n", mdEscape(t.caption))
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.headers, " | "))
	seps := make([]string, len(t.headers))
	for i := range seps {
		seps[i] = "---"
		if t.right != nil && t.right[i] {
			seps[i] = "---:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	if math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	// Trim trailing zeros but keep at least one digit after the decimal point.
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

// csvValue keeps full precision; missing values become empty fields.
func csvValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// period converts a frequency in cycles per sample to a period in samples.
// The DC bin has no period and yields NaN.
func period(freq float64) float64 {
	if freq == 0 {
		return math.NaN()
	}
	return 1 / freq
}

// ptr returns nil for NaN so JSON carries null.
func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return util.FormatDate(t)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
