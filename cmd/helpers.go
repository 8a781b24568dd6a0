package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/app"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/pipeline"
	"github.com/derickschaefer/tsprep/internal/render"
	"github.com/derickschaefer/tsprep/internal/transform"
)

const formatAuto = "auto"

// ─── Input ────────────────────────────────────────────────────────────────────

// inputFlags selects where analysis commands read their series from.
// Without either flag they read JSONL from stdin.
var inputFlags struct {
	File   string
	Series string
	ID     string
}

// addInputFlags registers --input/--series/--id on each parent command so
// every subcommand inherits them.
func addInputFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		pf := c.PersistentFlags()
		pf.StringVar(&inputFlags.File, "input", "", "read observations from a .csv or .jsonl file instead of stdin")
		pf.StringVar(&inputFlags.Series, "series", "", "read a series saved with 'tsprep store put'")
		pf.StringVar(&inputFlags.ID, "id", "", "override the series ID")
	}
}

// readInput loads the raw observations for a command: a stored series, a
// file, or JSONL on stdin, in that order of preference.
func readInput(cmd *cobra.Command, deps *app.Deps) (model.SeriesData, error) {
	var data model.SeriesData
	switch {
	case inputFlags.Series != "":
		st, err := deps.Store()
		if err != nil {
			return data, err
		}
		d, ok, err := st.GetSeries(inputFlags.Series)
		if err != nil {
			return data, fmt.Errorf("reading series %q: %w", inputFlags.Series, err)
		}
		if !ok {
			return data, fmt.Errorf("series %q not found in workspace (see 'tsprep store list')", inputFlags.Series)
		}
		data = d
	case inputFlags.File != "":
		d, err := readFile(inputFlags.File, pipeline.DefaultCSVOptions())
		if err != nil {
			return data, err
		}
		data = d
	default:
		id, obs, err := pipeline.ReadObservations(cmd.InOrStdin())
		if err != nil {
			return data, err
		}
		data = model.SeriesData{SeriesID: id, Obs: obs}
	}

	if inputFlags.ID != "" {
		data.SeriesID = inputFlags.ID
	}
	if data.SeriesID == "" {
		data.SeriesID = "series"
	}
	deps.Logger.Debug("input read", "series_id", data.SeriesID, "obs", len(data.Obs))
	return data, nil
}

// readFile parses a CSV or JSONL file chosen by extension. The series ID
// defaults to the JSONL series_id, then the file name.
func readFile(path string, csvOpts pipeline.CSVOptions) (model.SeriesData, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.SeriesData{}, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	data := model.SeriesData{SeriesID: strings.TrimSuffix(base, filepath.Ext(base)), Source: path}
	switch ext {
	case ".csv", ".tsv", ".txt":
		if ext == ".tsv" && csvOpts.Delimiter == ',' {
			csvOpts.Delimiter = '\t'
		}
		obs, err := pipeline.ReadCSV(f, csvOpts)
		if err != nil {
			return model.SeriesData{}, fmt.Errorf("%s: %w", path, err)
		}
		data.Obs = obs
	default:
		id, obs, err := pipeline.ReadObservations(f)
		if err != nil {
			return model.SeriesData{}, fmt.Errorf("%s: %w", path, err)
		}
		if id != "" {
			data.SeriesID = id
		}
		data.Obs = obs
	}
	return data, nil
}

// prepareSeries applies the configured missing-value policy and validates
// the result.
func prepareSeries(deps *app.Deps, data model.SeriesData) (*model.Series, error) {
	s, err := transform.Prepare(data.SeriesID, data.Obs, transform.MissingPolicy(deps.Config.Missing))
	if err != nil {
		return nil, err
	}
	if dropped := len(data.Obs) - s.Len(); dropped > 0 {
		deps.Logger.Info("missing values dropped", "series_id", data.SeriesID, "count", dropped)
	}
	return s, nil
}

// loadSeries is readInput followed by prepareSeries.
func loadSeries(cmd *cobra.Command, deps *app.Deps) (*model.Series, error) {
	data, err := readInput(cmd, deps)
	if err != nil {
		return nil, err
	}
	return prepareSeries(deps, data)
}

// ─── Output ───────────────────────────────────────────────────────────────────

// resolveFormat returns the effective format string. "auto" means a table
// on a terminal and JSONL otherwise, so commands chain through pipes.
func resolveFormat(cfgFormat string) string {
	f := strings.ToLower(strings.TrimSpace(cfgFormat))
	if f == "" || f == formatAuto {
		if globalFlags.Out == "" && pipeline.IsTTY() {
			return render.FormatTable
		}
		return render.FormatJSONL
	}
	return f
}

// outputWriter returns def, or the --out file when one was given.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// newResult wraps data in a Result envelope.
func newResult(kind, command string, data interface{}, items int) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		Command:     command,
		Data:        data,
		Stats:       model.ResultStats{Items: items},
	}
}

// emit renders result in the resolved format, records it when --save is
// set, and prints warnings and stats to stderr.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result, seriesID string, started time.Time) error {
	result.Stats.DurationMs = time.Since(started).Milliseconds()

	format := resolveFormat(deps.Config.Format)
	if !render.ValidFormat(format) {
		return fmt.Errorf("unknown format %q (valid: auto, %s)", format, strings.Join(render.Formats, ", "))
	}
	if format == render.FormatParquet && globalFlags.Out == "" && pipeline.IsTTY() {
		return fmt.Errorf("parquet output is binary: use --out <file> or redirect stdout")
	}

	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := render.Render(w, result, format); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if globalFlags.Save {
		if err := saveRun(cmd, deps, result, seriesID); err != nil {
			return err
		}
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

// saveRun records result in the runs bucket.
func saveRun(cmd *cobra.Command, deps *app.Deps, result *model.Result, seriesID string) error {
	st, err := deps.Store()
	if err != nil {
		return err
	}
	id, err := st.PutRun(seriesID, *result)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	deps.Logger.Info("run saved", "id", id, "kind", result.Kind)
	if !deps.Config.Quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved run %s\n", id)
	}
	return nil
}

// commandPath is the command line without the binary name, e.g. "smooth ma".
func commandPath(cmd *cobra.Command) string {
	return strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
}

// ─── Tables ───────────────────────────────────────────────────────────────────

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTableTo renders a two-column key/value table with aligned keys.
func printKVTableTo(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-*s  %s\n", maxKey, r[0], r[1])
	}
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
