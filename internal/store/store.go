// Package store provides a thin bbolt wrapper for the tsprep workspace.
//
// The workspace is an explicit accumulator: series are saved by `import`,
// `fetch --store` or `store put`, analysis results by `--save` on any
// analysis command. Nothing expires.
//
// Buckets:
//
//	series     named observation sets
//	runs       saved Result envelopes of analysis commands
//	snapshots  saved command lines for reproducible workflows
//	_meta      internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/util"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket name constants.
var (
	bucketSeries    = []byte("series")
	bucketRuns      = []byte("runs")
	bucketSnapshots = []byte("snapshots")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"series", "runs", "snapshots"}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSeries, bucketRuns, bucketSnapshots, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Series ───────────────────────────────────────────────────────────────────

// storedObsRow is the JSON-safe on-disk representation of a single observation.
// Value is a *float64 so that missing values (NaN) are stored as JSON null
// rather than NaN, which encoding/json cannot handle.
type storedObsRow struct {
	Date     string   `json:"date"`
	Value    *float64 `json:"value"` // null = missing
	ValueRaw string   `json:"value_raw,omitempty"`
}

// storedSeries is the on-disk envelope for a saved series.
type storedSeries struct {
	SeriesID string         `json:"series_id"`
	Source   string         `json:"source,omitempty"`
	SavedAt  time.Time      `json:"saved_at"`
	Obs      []storedObsRow `json:"observations"`
}

// SeriesInfo summarizes a saved series for listings.
type SeriesInfo struct {
	Name    string    `json:"name"`
	Source  string    `json:"source,omitempty"`
	Count   int       `json:"count"`
	Missing int       `json:"missing"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
	SavedAt time.Time `json:"saved_at"`
}

func obsToStored(o model.Observation) storedObsRow {
	row := storedObsRow{Date: util.FormatDate(o.Date), ValueRaw: o.ValueRaw}
	if !o.IsMissing() {
		v := o.Value
		row.Value = &v
	}
	return row
}

func storedToObs(r storedObsRow) (model.Observation, error) {
	t, err := util.ParseDate(r.Date)
	if err != nil {
		return model.Observation{}, err
	}
	o := model.Observation{Date: t, Value: math.NaN(), ValueRaw: r.ValueRaw}
	if r.Value != nil {
		o.Value = *r.Value
	}
	if o.ValueRaw == "" {
		o.ValueRaw = model.FormatRaw(o.Value)
	}
	return o, nil
}

func encodeSeries(data model.SeriesData, savedAt time.Time) ([]byte, error) {
	env := storedSeries{
		SeriesID: data.SeriesID,
		Source:   data.Source,
		SavedAt:  savedAt,
		Obs:      make([]storedObsRow, len(data.Obs)),
	}
	for i, o := range data.Obs {
		env.Obs[i] = obsToStored(o)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding series: %w", err)
	}
	return b, nil
}

// PutSeries saves data under name, replacing any previous version.
func (s *Store) PutSeries(name string, data model.SeriesData) error {
	return s.PutSeriesBatch(map[string]model.SeriesData{name: data})
}

// PutSeriesBatch saves every entry in a single write transaction, so a
// batch is stored completely or not at all.
func (s *Store) PutSeriesBatch(entries map[string]model.SeriesData) error {
	now := time.Now().UTC()
	encoded := make(map[string][]byte, len(entries))
	for name, data := range entries {
		if name == "" {
			return fmt.Errorf("store: series name must not be empty")
		}
		b, err := encodeSeries(data, now)
		if err != nil {
			return err
		}
		encoded[name] = b
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeries)
		for name, v := range encoded {
			if err := b.Put([]byte(name), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSeries retrieves a saved series by name.
// Returns (data, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetSeries(name string) (model.SeriesData, bool, error) {
	var env storedSeries
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSeries).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &env)
	})
	if err != nil || !found {
		return model.SeriesData{}, false, err
	}
	obs := make([]model.Observation, len(env.Obs))
	for i, r := range env.Obs {
		if obs[i], err = storedToObs(r); err != nil {
			return model.SeriesData{}, false, fmt.Errorf("decoding series %s: %w", name, err)
		}
	}
	return model.SeriesData{SeriesID: env.SeriesID, Source: env.Source, Obs: obs}, true, nil
}

// ListSeries returns a summary of every saved series, sorted by name.
func (s *Store) ListSeries() ([]SeriesInfo, error) {
	var out []SeriesInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeries).ForEach(func(k, v []byte) error {
			var env storedSeries
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("decoding series %s: %w", k, err)
			}
			info := SeriesInfo{Name: string(k), Source: env.Source, Count: len(env.Obs), SavedAt: env.SavedAt}
			for _, r := range env.Obs {
				if r.Value == nil {
					info.Missing++
				}
			}
			if len(env.Obs) > 0 {
				info.First, _ = util.ParseDate(env.Obs[0].Date)
				info.Last, _ = util.ParseDate(env.Obs[len(env.Obs)-1].Date)
			}
			out = append(out, info)
			return nil
		})
	})
	return out, err
}

// DeleteSeries removes a saved series. Deleting an absent name is not an error.
func (s *Store) DeleteSeries(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeries).Delete([]byte(name))
	})
}

// ─── Runs ─────────────────────────────────────────────────────────────────────

// Run is a saved analysis result.
type Run struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	Kind      string          `json:"kind"`
	SeriesID  string          `json:"series_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result"`
}

// PutRun saves a Result envelope and returns the assigned run ID.
// IDs are sequential ("run-000001", ...) so listing order is creation order.
func (s *Store) PutRun(seriesID string, result model.Result) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	var id string
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = fmt.Sprintf("run-%06d", seq)
		run := Run{
			ID:        id,
			Command:   result.Command,
			Kind:      result.Kind,
			SeriesID:  seriesID,
			CreatedAt: time.Now().UTC(),
			Result:    payload,
		}
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("encoding run: %w", err)
		}
		return b.Put([]byte(id), data)
	})
	return id, err
}

// GetRun retrieves a saved run by ID.
func (s *Store) GetRun(id string) (Run, bool, error) {
	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return run, false, err
	}
	return run, run.ID != "", nil
}

// ListRuns returns saved runs in creation order, optionally restricted to
// one result kind.
func (s *Store) ListRuns(kind string) ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if kind == "" || r.Kind == kind {
				r.Result = nil // listings stay light
				runs = append(runs, r)
			}
			return nil
		})
	})
	return runs, err
}

// DeleteRun removes a saved run.
func (s *Store) DeleteRun(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Delete([]byte(id))
	})
}

// ─── Snapshots ────────────────────────────────────────────────────────────────

// Snapshot represents a saved command for reproducible workflows.
type Snapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CommandLine string    `json:"command_line"`
	CreatedAt   time.Time `json:"created_at"`
}

// PutSnapshot saves a snapshot. The key is snap:<ID>.
func (s *Store) PutSnapshot(snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte("snap:"+snap.ID), b)
	})
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(id string) (Snapshot, bool, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte("snap:" + id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &snap)
	})
	if err != nil {
		return snap, false, err
	}
	return snap, snap.ID != "", nil
}

// ListSnapshots returns all snapshots ordered by creation time.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps, err
}

// DeleteSnapshot removes a snapshot by ID.
func (s *Store) DeleteSnapshot(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte("snap:" + id))
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Bytes int64  `json:"bytes"`
}

// Stats returns row counts and approximate sizes for all user-facing
// buckets, in AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			st := BucketStats{Name: name}
			if err := b.ForEach(func(k, v []byte) error {
				st.Count++
				st.Bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		known = known || b == name
	}
	if !known {
		return fmt.Errorf("unknown bucket %q (valid: %v)", name, AllBuckets)
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact copies all live data into a fresh file and swaps it in place of
// the original. bbolt never shrinks a file on its own; freed pages are
// only reused. The store stays usable afterwards.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	before = fi.Size()

	tmp := path + ".compact"
	_ = os.Remove(tmp)
	dst, err := bolt.Open(tmp, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", tmp, err)
	}
	if err := bolt.Compact(dst, s.db, 64<<20); err != nil {
		dst.Close()
		os.Remove(tmp)
		return 0, 0, fmt.Errorf("copying data: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return 0, 0, err
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmp)
		return 0, 0, err
	}
	renameErr := os.Rename(tmp, path)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("reopening %s: %w", path, err)
	}
	s.db = db
	if renameErr != nil {
		os.Remove(tmp)
		return 0, 0, fmt.Errorf("replacing database: %w", renameErr)
	}

	if fi, err = os.Stat(path); err != nil {
		return before, 0, err
	}
	return before, fi.Size(), nil
}
