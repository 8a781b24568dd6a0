// Package source downloads remote series over HTTP. Bodies may be CSV
// (date,value header) or JSONL in the pipe format. All requests are
// context-aware, share one rate limiter, and retry on transient errors
// (429, 5xx) with exponential backoff.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/pipeline"
	"github.com/derickschaefer/tsprep/internal/util"
)

const (
	defaultMaxRetries = 4
	defaultBackoff    = 500 * time.Millisecond
	maxBodyBytes      = 64 << 20
	userAgent         = "tsprep-cli/1.0"
)

// Body formats.
const (
	FormatAuto  = ""
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout    time.Duration
	Rate       float64 // requests per second across all goroutines
	MaxRetries int
	Backoff    time.Duration // first retry delay, doubled per attempt
	Logger     *slog.Logger
}

// Fetcher is the HTTP client for remote series.
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Rate <= 0 {
		opts.Rate = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	burst := int(opts.Rate)
	if burst < 1 {
		burst = 1
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.Rate), burst),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		log:        opts.Logger,
	}
}

// Request describes one remote series.
type Request struct {
	URL      string
	SeriesID string // defaults to the JSONL series_id, then the URL file name
	Format   string // FormatAuto sniffs Content-Type, extension, then body
	CSV      pipeline.CSVOptions
}

// ─── Fetch ────────────────────────────────────────────────────────────────────

// Fetch downloads and parses one series. Missing values are kept as NaN.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (model.SeriesData, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return model.SeriesData{}, fmt.Errorf("fetch %s: not an http(s) URL", req.URL)
	}

	body, contentType, err := f.get(ctx, req.URL)
	if err != nil {
		return model.SeriesData{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	format := req.Format
	if format == FormatAuto {
		format = detectFormat(contentType, u.Path, body)
	}

	data := model.SeriesData{SeriesID: req.SeriesID, Source: req.URL}
	switch format {
	case FormatJSONL:
		id, obs, err := pipeline.ReadObservations(bytes.NewReader(body))
		if err != nil {
			return model.SeriesData{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
		if data.SeriesID == "" {
			data.SeriesID = id
		}
		data.Obs = obs
	case FormatCSV:
		opts := req.CSV
		if opts.DateColumn == "" && opts.ValueColumn == "" {
			opts = pipeline.DefaultCSVOptions()
		}
		obs, err := pipeline.ReadCSV(bytes.NewReader(body), opts)
		if err != nil {
			return model.SeriesData{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
		data.Obs = obs
	default:
		return model.SeriesData{}, fmt.Errorf("fetch %s: unknown format %q", req.URL, format)
	}

	if data.SeriesID == "" {
		data.SeriesID = idFromPath(u.Path)
	}
	f.log.Debug("fetched series", "url", req.URL, "series_id", data.SeriesID, "format", format, "obs", len(data.Obs))
	return data, nil
}

// FetchAll downloads reqs concurrently, at most concurrency at a time.
// Results keep the order of reqs; failed requests are omitted and their
// errors returned together as a *util.MultiError alongside the successes.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request, concurrency int) ([]model.SeriesData, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]model.SeriesData, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i], errs[i] = f.Fetch(gctx, req)
			return nil // one bad URL must not cancel the others
		})
	}
	_ = g.Wait()

	var merr util.MultiError
	out := make([]model.SeriesData, 0, len(reqs))
	for i := range reqs {
		if errs[i] != nil {
			merr.Add(errs[i])
			continue
		}
		out = append(out, results[i])
	}
	return out, merr.Err()
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// statusError is a non-retryable HTTP failure.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// get performs a GET request, handling rate limiting and retries.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	f.log.Debug("source request", "url", redact(rawURL))

	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * f.backoff
			f.log.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "text/csv, application/x-ndjson, application/json;q=0.9, */*;q=0.5")
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}
		f.log.Debug("source response", "status", resp.StatusCode, "bytes", len(body))

		// Retry on server errors and rate limiting
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &statusError{code: resp.StatusCode, body: snippet(body)}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, "", &statusError{code: resp.StatusCode, body: snippet(body)}
		}
		return body, resp.Header.Get("Content-Type"), nil
	}
	return nil, "", fmt.Errorf("after %d attempts: %w", f.maxRetries, lastErr)
}

// StatusCode extracts the HTTP status from a fetch error, or 0.
func StatusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

// detectFormat picks the body format from the Content-Type, then the URL
// extension, then the first non-blank byte of the body.
func detectFormat(contentType, urlPath string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "text/csv", "application/csv":
			return FormatCSV
		case "application/x-ndjson", "application/jsonl", "application/json":
			return FormatJSONL
		}
	}
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".csv":
		return FormatCSV
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSONL
	}
	return FormatCSV
}

// idFromPath derives a series ID from the last path segment, without its
// extension.
func idFromPath(p string) string {
	base := path.Base(p)
	if base == "/" || base == "." {
		return "series"
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// redact strips query values that look like credentials.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "secret") {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
