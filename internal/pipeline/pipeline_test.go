package pipeline_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/pipeline"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func isNaN(v float64) bool { return math.IsNaN(v) }

// jsonl joins lines with newlines and appends a trailing newline.
func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// mkobs builds a single model.Observation for write tests.
func mkobs(year, month, day int, value float64, raw string) model.Observation {
	return model.Observation{
		Date:     time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
		Value:    value,
		ValueRaw: raw,
	}
}

// ─── ReadObservations ─────────────────────────────────────────────────────────

func TestReadBasicFloat(t *testing.T) {
	input := jsonl(
		`{"series_id":"SENSOR1","date":"2020-01-01","value":3.5,"value_raw":"3.5"}`,
		`{"series_id":"SENSOR1","date":"2020-02-01","value":3.6}`,
	)
	sid, obs, err := pipeline.ReadObservations(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SENSOR1" {
		t.Errorf("series_id: expected SENSOR1, got %q", sid)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[1].Value != 3.6 || obs[1].ValueRaw != "3.6" {
		t.Errorf("obs[1]: expected 3.6/\"3.6\", got %g/%q", obs[1].Value, obs[1].ValueRaw)
	}
}

func TestReadMissingValues(t *testing.T) {
	input := jsonl(
		`{"date":"2020-01-01","value":null}`,
		`{"date":"2020-01-02","value":"."}`,
		`{"date":"2020-01-03","value":"4.5"}`,
	)
	_, obs, err := pipeline.ReadObservations(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isNaN(obs[0].Value) || obs[0].ValueRaw != "." {
		t.Errorf("null: expected NaN/\".\", got %g/%q", obs[0].Value, obs[0].ValueRaw)
	}
	if !isNaN(obs[1].Value) {
		t.Errorf("\".\": expected NaN, got %g", obs[1].Value)
	}
	if obs[2].Value != 4.5 {
		t.Errorf("numeric string: expected 4.5, got %g", obs[2].Value)
	}
}

func TestReadSkipsBlankAndComments(t *testing.T) {
	input := jsonl(
		`// exported by tsprep`,
		``,
		`{"date":"2020-01-01T12:00:00Z","value":1}`,
	)
	_, obs, err := pipeline.ReadObservations(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs[0].Date.Hour() != 12 {
		t.Errorf("expected RFC 3339 time preserved, got %s", obs[0].Date)
	}
}

func TestReadErrors(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"bad json": `{"date":`,
		"bad date": `{"date":"01/02/2020","value":1}`,
		"bad type": `{"date":"2020-01-01","value":true}`,
		"bad str":  `{"date":"2020-01-01","value":"abc"}`,
	}
	for name, input := range cases {
		if _, _, err := pipeline.ReadObservations(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

// ─── Write ────────────────────────────────────────────────────────────────────

func TestWriteJSONLRoundTrip(t *testing.T) {
	obs := []model.Observation{
		mkobs(2020, 1, 1, 1.25, "1.25"),
		mkobs(2020, 2, 1, math.NaN(), "."),
	}
	var buf bytes.Buffer
	if err := pipeline.WriteJSONL(&buf, "X", obs); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], `"value":null`) {
		t.Errorf("missing value should encode as null: %s", lines[1])
	}
	if strings.Contains(lines[0], "anomaly") {
		t.Errorf("plain write should not carry anomaly flags: %s", lines[0])
	}

	sid, back, err := pipeline.ReadObservations(&buf)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if sid != "X" || back[0].Value != 1.25 || !isNaN(back[1].Value) {
		t.Errorf("round trip mismatch: %s %v", sid, back)
	}
}

func TestWriteAnnotated(t *testing.T) {
	obs := []model.Observation{mkobs(2020, 1, 1, 1, ""), mkobs(2020, 1, 2, 99, "")}
	var buf bytes.Buffer
	if err := pipeline.WriteAnnotated(&buf, "X", obs, []bool{false, true}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	var rec pipeline.Record
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Anomaly == nil || !*rec.Anomaly {
		t.Errorf("expected anomaly=true on second line: %s", lines[1])
	}
	if rec.Valid != nil {
		t.Errorf("valid should be omitted when not supplied")
	}
	if rec.ValueRaw != "99" {
		t.Errorf("value_raw: expected 99, got %q", rec.ValueRaw)
	}
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

func TestReadCSV(t *testing.T) {
	input := "# sensor dump\nDate,Temp,Other\n2020-01-01,1.5,x\n2020-01-02,,y\n2020-01-03,NA,z\n"
	obs, err := pipeline.ReadCSV(strings.NewReader(input), pipeline.CSVOptions{DateColumn: "date", ValueColumn: "temp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	if obs[0].Value != 1.5 || !isNaN(obs[1].Value) || !isNaN(obs[2].Value) {
		t.Errorf("unexpected values: %v", obs)
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := pipeline.ReadCSV(strings.NewReader("when,value\n2020-01-01,1\n"), pipeline.DefaultCSVOptions())
	if err == nil {
		t.Fatal("expected error for missing date column")
	}
}

func TestReadCSVBadValue(t *testing.T) {
	_, err := pipeline.ReadCSV(strings.NewReader("date,value\n2020-01-01,abc\n"), pipeline.DefaultCSVOptions())
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line-numbered error, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	obs := []model.Observation{mkobs(2020, 1, 1, 2, "2"), mkobs(2020, 1, 2, math.NaN(), ".")}
	if err := pipeline.WriteCSV(&buf, obs); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "date,value\n2020-01-01,2\n2020-01-02,\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}
