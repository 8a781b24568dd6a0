package store_test

import (
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testDB opens a fresh isolated database in t.TempDir().
// It is closed and deleted automatically when the test ends.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func isNaN(v float64) bool { return math.IsNaN(v) }

// makeSeriesData builds a SeriesData with daily observations.
func makeSeriesData(seriesID string, values ...float64) model.SeriesData {
	obs := make([]model.Observation, len(values))
	for i, v := range values {
		obs[i] = model.Observation{
			Date:     time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Value:    v,
			ValueRaw: model.FormatRaw(v),
		}
	}
	return model.SeriesData{SeriesID: seriesID, Source: "test", Obs: obs}
}

// ─── Open ─────────────────────────────────────────────────────────────────────

func TestOpenCreatesNestedDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "tsprep.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %s, got %s", path, s.Path())
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsprep.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.PutSeries("temp", makeSeriesData("T", 1, 2)); err != nil {
		t.Fatalf("PutSeries: %v", err)
	}
	s.Close()

	s2, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, ok, _ := s2.GetSeries("temp"); !ok {
		t.Error("series should survive reopen")
	}
}

// ─── Series ───────────────────────────────────────────────────────────────────

func TestPutGetSeries(t *testing.T) {
	s := testDB(t)
	data := makeSeriesData("SENSOR", 1.5, math.NaN(), 3)
	if err := s.PutSeries("sensor", data); err != nil {
		t.Fatalf("PutSeries: %v", err)
	}

	got, ok, err := s.GetSeries("sensor")
	if err != nil || !ok {
		t.Fatalf("GetSeries: ok=%v err=%v", ok, err)
	}
	if got.SeriesID != "SENSOR" || got.Source != "test" {
		t.Errorf("metadata: got %q/%q", got.SeriesID, got.Source)
	}
	if len(got.Obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(got.Obs))
	}
	if got.Obs[0].Value != 1.5 {
		t.Errorf("obs[0]: expected 1.5, got %g", got.Obs[0].Value)
	}
	if !isNaN(got.Obs[1].Value) || got.Obs[1].ValueRaw != "." {
		t.Errorf("obs[1]: expected NaN/\".\", got %g/%q", got.Obs[1].Value, got.Obs[1].ValueRaw)
	}
	if !got.Obs[2].Date.Equal(data.Obs[2].Date) {
		t.Errorf("obs[2] date: expected %s, got %s", data.Obs[2].Date, got.Obs[2].Date)
	}
}

func TestGetSeriesMissing(t *testing.T) {
	s := testDB(t)
	_, ok, err := s.GetSeries("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected not found")
	}
}

func TestPutSeriesEmptyName(t *testing.T) {
	s := testDB(t)
	if err := s.PutSeries("", makeSeriesData("X", 1)); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestPutSeriesOverwrites(t *testing.T) {
	s := testDB(t)
	_ = s.PutSeries("x", makeSeriesData("X", 1, 2, 3))
	_ = s.PutSeries("x", makeSeriesData("X", 9))
	got, _, _ := s.GetSeries("x")
	if len(got.Obs) != 1 || got.Obs[0].Value != 9 {
		t.Errorf("expected the second version, got %v", got.Obs)
	}
}

func TestPutSeriesBatch(t *testing.T) {
	s := testDB(t)
	err := s.PutSeriesBatch(map[string]model.SeriesData{
		"one": makeSeriesData("ONE", 1, 2),
		"two": makeSeriesData("TWO", math.NaN(), 5),
	})
	if err != nil {
		t.Fatalf("PutSeriesBatch: %v", err)
	}
	list, _ := s.ListSeries()
	if len(list) != 2 {
		t.Fatalf("expected 2 series, got %d", len(list))
	}
	got, ok, _ := s.GetSeries("two")
	if !ok || !got.Obs[0].IsMissing() || got.Obs[1].Value != 5 {
		t.Errorf("unexpected series two: %+v", got.Obs)
	}
}

func TestPutSeriesBatchRejectsEmptyName(t *testing.T) {
	s := testDB(t)
	err := s.PutSeriesBatch(map[string]model.SeriesData{
		"ok": makeSeriesData("OK", 1),
		"":   makeSeriesData("BAD", 1),
	})
	if err == nil {
		t.Fatal("expected error for empty name")
	}
	if list, _ := s.ListSeries(); len(list) != 0 {
		t.Errorf("nothing should be stored when the batch fails, got %d", len(list))
	}
}

func TestPutRunSeriesDataWithMissing(t *testing.T) {
	s := testDB(t)
	res := model.Result{Kind: model.KindSeriesData, Data: makeSeriesData("X", 1, math.NaN())}
	id, err := s.PutRun("X", res)
	if err != nil {
		t.Fatalf("PutRun: %v", err)
	}
	run, ok, err := s.GetRun(id)
	if err != nil || !ok {
		t.Fatalf("GetRun: ok=%v err=%v", ok, err)
	}
	var env struct {
		Data model.SeriesData `json:"data"`
	}
	if err := json.Unmarshal(run.Result, &env); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if len(env.Data.Obs) != 2 || !env.Data.Obs[1].IsMissing() {
		t.Errorf("expected the missing value to survive, got %+v", env.Data.Obs)
	}
}

func TestListAndDeleteSeries(t *testing.T) {
	s := testDB(t)
	_ = s.PutSeries("b", makeSeriesData("B", 1, math.NaN(), 3))
	_ = s.PutSeries("a", makeSeriesData("A", 1))

	list, err := s.ListSeries()
	if err != nil {
		t.Fatalf("ListSeries: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("expected [a b], got %+v", list)
	}
	if list[1].Count != 3 || list[1].Missing != 1 {
		t.Errorf("b: expected count=3 missing=1, got %d/%d", list[1].Count, list[1].Missing)
	}
	if !list[1].Last.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("b: unexpected last date %s", list[1].Last)
	}

	if err := s.DeleteSeries("a"); err != nil {
		t.Fatalf("DeleteSeries: %v", err)
	}
	if err := s.DeleteSeries("a"); err != nil {
		t.Errorf("deleting twice should not fail: %v", err)
	}
	list, _ = s.ListSeries()
	if len(list) != 1 {
		t.Errorf("expected 1 series after delete, got %d", len(list))
	}
}

// ─── Runs ─────────────────────────────────────────────────────────────────────

func TestPutGetRun(t *testing.T) {
	s := testDB(t)
	res := model.Result{
		Kind:    model.KindStationarity,
		Command: "analyze adf",
		Data:    model.StationarityResult{SeriesID: "X", Statistic: -3.2, Stationary: true},
	}
	id, err := s.PutRun("X", res)
	if err != nil {
		t.Fatalf("PutRun: %v", err)
	}
	if !strings.HasPrefix(id, "run-") {
		t.Errorf("unexpected run id %q", id)
	}

	run, ok, err := s.GetRun(id)
	if err != nil || !ok {
		t.Fatalf("GetRun: ok=%v err=%v", ok, err)
	}
	if run.Kind != model.KindStationarity || run.SeriesID != "X" {
		t.Errorf("unexpected run header: %+v", run)
	}
	var env struct {
		Data model.StationarityResult `json:"data"`
	}
	if err := json.Unmarshal(run.Result, &env); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if env.Data.Statistic != -3.2 || !env.Data.Stationary {
		t.Errorf("payload mismatch: %+v", env.Data)
	}
}

func TestPutRunNaNPayload(t *testing.T) {
	s := testDB(t)
	res := model.Result{
		Kind: model.KindSmoothed,
		Data: model.SmoothedSeries{Values: model.Floats{math.NaN(), 2}, Valid: []bool{false, true}},
	}
	if _, err := s.PutRun("X", res); err != nil {
		t.Fatalf("NaN values should be stored as null: %v", err)
	}
}

func TestListRunsOrderAndFilter(t *testing.T) {
	s := testDB(t)
	for _, kind := range []string{model.KindSmoothed, model.KindAnomalies, model.KindSmoothed} {
		if _, err := s.PutRun("X", model.Result{Kind: kind}); err != nil {
			t.Fatalf("PutRun: %v", err)
		}
	}
	all, err := s.ListRuns("")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].ID >= all[1].ID || all[1].ID >= all[2].ID {
		t.Errorf("runs not in creation order: %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}
	if all[0].Result != nil {
		t.Error("listing should not carry result payloads")
	}
	smoothed, _ := s.ListRuns(model.KindSmoothed)
	if len(smoothed) != 2 {
		t.Errorf("expected 2 smoothed runs, got %d", len(smoothed))
	}

	if err := s.DeleteRun(all[0].ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, ok, _ := s.GetRun(all[0].ID); ok {
		t.Error("deleted run should be gone")
	}
}

// ─── Snapshots ────────────────────────────────────────────────────────────────

func TestSnapshotCRUD(t *testing.T) {
	s := testDB(t)
	now := time.Now().UTC()
	first := store.Snapshot{ID: "s1", Name: "weekly", CommandLine: "smooth ma --window 7", CreatedAt: now}
	second := store.Snapshot{ID: "s2", Name: "adf", CommandLine: "analyze adf", CreatedAt: now.Add(time.Second)}
	_ = s.PutSnapshot(second)
	_ = s.PutSnapshot(first)

	got, ok, err := s.GetSnapshot("s1")
	if err != nil || !ok || got.CommandLine != first.CommandLine {
		t.Fatalf("GetSnapshot: %+v ok=%v err=%v", got, ok, err)
	}
	list, _ := s.ListSnapshots()
	if len(list) != 2 || list[0].ID != "s1" {
		t.Errorf("expected s1 first by creation time, got %+v", list)
	}
	_ = s.DeleteSnapshot("s1")
	if _, ok, _ := s.GetSnapshot("s1"); ok {
		t.Error("deleted snapshot should be gone")
	}
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	s := testDB(t)
	_ = s.PutSeries("a", makeSeriesData("A", 1, 2))
	_, _ = s.PutRun("A", model.Result{Kind: model.KindSummary})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != len(store.AllBuckets) {
		t.Fatalf("expected %d buckets, got %d", len(store.AllBuckets), len(stats))
	}
	counts := map[string]int{}
	for _, st := range stats {
		counts[st.Name] = st.Count
		if st.Count > 0 && st.Bytes == 0 {
			t.Errorf("%s: non-empty bucket reports zero bytes", st.Name)
		}
	}
	if counts["series"] != 1 || counts["runs"] != 1 || counts["snapshots"] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestClearBucket(t *testing.T) {
	s := testDB(t)
	_ = s.PutSeries("a", makeSeriesData("A", 1))
	_, _ = s.PutRun("A", model.Result{Kind: model.KindSummary})

	if err := s.ClearBucket("series"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}
	if list, _ := s.ListSeries(); len(list) != 0 {
		t.Errorf("series should be empty, got %d", len(list))
	}
	if runs, _ := s.ListRuns(""); len(runs) != 1 {
		t.Errorf("runs should be untouched, got %d", len(runs))
	}
	if err := s.ClearBucket("_meta"); err == nil {
		t.Error("clearing an internal bucket should fail")
	}
}

func TestClearAll(t *testing.T) {
	s := testDB(t)
	_ = s.PutSeries("a", makeSeriesData("A", 1))
	_ = s.PutSnapshot(store.Snapshot{ID: "s", CreatedAt: time.Now()})
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	stats, _ := s.Stats()
	for _, st := range stats {
		if st.Count != 0 {
			t.Errorf("%s: expected empty after ClearAll, got %d", st.Name, st.Count)
		}
	}
	// Store must stay usable.
	if err := s.PutSeries("b", makeSeriesData("B", 2)); err != nil {
		t.Errorf("PutSeries after ClearAll: %v", err)
	}
}

func TestCompactKeepsData(t *testing.T) {
	s := testDB(t)
	big := make([]float64, 5000)
	for i := range big {
		big[i] = float64(i)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := s.PutSeries(name, makeSeriesData("X", big...)); err != nil {
			t.Fatalf("PutSeries: %v", err)
		}
	}
	_ = s.PutSeries("keep", makeSeriesData("KEEP", 1, 2, 3))
	for _, name := range []string{"a", "b", "c"} {
		_ = s.DeleteSeries(name)
	}

	before, after, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if after > before {
		t.Errorf("expected the file not to grow: before=%d after=%d", before, after)
	}
	got, ok, err := s.GetSeries("keep")
	if err != nil || !ok || len(got.Obs) != 3 {
		t.Fatalf("series lost after compaction: ok=%v err=%v", ok, err)
	}
	if err := s.PutSeries("new", makeSeriesData("NEW", 4)); err != nil {
		t.Errorf("store should stay writable after compaction: %v", err)
	}
}
