// Package pipeline reads and writes observation streams. JSONL on
// stdin/stdout is the canonical pipe format between tsprep commands; CSV is
// accepted for ingestion.
package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/util"
)

// Record is one JSONL line. Anomaly and Valid are set by commands that
// annotate points (detectors, smoothers) and are ignored on input.
type Record struct {
	SeriesID string   `json:"series_id,omitempty"`
	Date     string   `json:"date"`
	Value    *float64 `json:"value"`
	ValueRaw string   `json:"value_raw,omitempty"`
	Anomaly  *bool    `json:"anomaly,omitempty"`
	Valid    *bool    `json:"valid,omitempty"`
}

// ReadObservations reads JSONL records from r (stdin) and returns
// the series_id and slice of Observations.
// Each line must be a JSON object with at least "date" and "value" fields.
func ReadObservations(r io.Reader) (string, []model.Observation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	type row struct {
		SeriesID string      `json:"series_id"`
		Date     string      `json:"date"`
		Value    interface{} `json:"value"`
		ValueRaw string      `json:"value_raw"`
	}

	var obs []model.Observation
	seriesID := ""
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec row
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return "", nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if seriesID == "" && rec.SeriesID != "" {
			seriesID = rec.SeriesID
		}

		date, err := util.ParseDate(rec.Date)
		if err != nil {
			return "", nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		// Value may be null (missing), a number, or a numeric string.
		var val float64
		raw := rec.ValueRaw
		switch v := rec.Value.(type) {
		case nil:
			val = math.NaN()
		case float64:
			val = v
		case string:
			if val, err = util.ParseObsValue(v); err != nil {
				return "", nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		default:
			return "", nil, fmt.Errorf("line %d: unexpected value type %T", lineNum, rec.Value)
		}
		if raw == "" {
			raw = model.FormatRaw(val)
		}

		obs = append(obs, model.Observation{Date: date, Value: val, ValueRaw: raw})
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading input: %w", err)
	}
	if len(obs) == 0 {
		return "", nil, errors.New("no observations read from input (is stdin empty?)")
	}
	return seriesID, obs, nil
}

// WriteJSONL writes observations as JSONL to w.
func WriteJSONL(w io.Writer, seriesID string, obs []model.Observation) error {
	return WriteAnnotated(w, seriesID, obs, nil, nil)
}

// WriteAnnotated writes observations as JSONL with optional per-point
// anomaly and validity flags. Either slice may be nil.
func WriteAnnotated(w io.Writer, seriesID string, obs []model.Observation, anomaly, valid []bool) error {
	enc := json.NewEncoder(w)
	for i, o := range obs {
		rec := Record{
			SeriesID: seriesID,
			Date:     util.FormatDate(o.Date),
			ValueRaw: o.ValueRaw,
		}
		if !o.IsMissing() {
			v := o.Value
			rec.Value = &v
		}
		if rec.ValueRaw == "" {
			rec.ValueRaw = model.FormatRaw(o.Value)
		}
		if anomaly != nil {
			a := anomaly[i]
			rec.Anomaly = &a
		}
		if valid != nil {
			v := valid[i]
			rec.Valid = &v
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

// CSVOptions selects the columns of a CSV input.
type CSVOptions struct {
	DateColumn  string // header name of the date column (default "date")
	ValueColumn string // header name of the value column (default "value")
	Delimiter   rune   // field delimiter (default ',')
}

// DefaultCSVOptions returns the options for a "date,value" file.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{DateColumn: "date", ValueColumn: "value", Delimiter: ','}
}

// ReadCSV reads a headered CSV file into observations. Missing values
// ("", ".", NA, NaN) become NaN.
func ReadCSV(r io.Reader, opts CSVOptions) ([]model.Observation, error) {
	if opts.DateColumn == "" {
		opts.DateColumn = "date"
	}
	if opts.ValueColumn == "" {
		opts.ValueColumn = "value"
	}
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	dateIdx, valIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case strings.ToLower(opts.DateColumn):
			dateIdx = i
		case strings.ToLower(opts.ValueColumn):
			valIdx = i
		}
	}
	if dateIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf("CSV header %v lacks %q and %q columns", header, opts.DateColumn, opts.ValueColumn)
	}

	var obs []model.Observation
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		date, err := util.ParseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		val, err := util.ParseObsValue(rec[valIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obs = append(obs, model.Observation{Date: date, Value: val, ValueRaw: model.FormatRaw(val)})
	}
	if len(obs) == 0 {
		return nil, errors.New("no observations in CSV input")
	}
	return obs, nil
}

// WriteCSV writes observations as a "date,value" CSV file. Missing values
// are written as empty fields.
func WriteCSV(w io.Writer, obs []model.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "value"}); err != nil {
		return err
	}
	for _, o := range obs {
		v := ""
		if !o.IsMissing() {
			v = strconv.FormatFloat(o.Value, 'g', -1, 64)
		}
		if err := cw.Write([]string{util.FormatDate(o.Date), v}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// StdinIsPipe reports whether stdin carries piped data rather than a terminal.
func StdinIsPipe() bool {
	return !term.IsTerminal(int(os.Stdin.Fd()))
}
