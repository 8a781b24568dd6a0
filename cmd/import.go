package cmd

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/app"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/pipeline"
)

// csvFlags configure CSV parsing for import and fetch.
var csvFlags struct {
	DateColumn  string
	ValueColumn string
	Delimiter   string
}

func addCSVFlags(c *cobra.Command) {
	c.Flags().StringVar(&csvFlags.DateColumn, "date-col", "date", "CSV header of the date column")
	c.Flags().StringVar(&csvFlags.ValueColumn, "value-col", "value", "CSV header of the value column")
	c.Flags().StringVar(&csvFlags.Delimiter, "delimiter", ",", "CSV field delimiter (single character; \\t for tab)")
}

// csvOptions converts the CSV flags, validating the delimiter.
func csvOptions() (pipeline.CSVOptions, error) {
	opts := pipeline.CSVOptions{DateColumn: csvFlags.DateColumn, ValueColumn: csvFlags.ValueColumn}
	d := csvFlags.Delimiter
	if d == `\t` {
		d = "\t"
	}
	r, size := utf8.DecodeRuneInString(d)
	if size == 0 || size != len(d) {
		return opts, fmt.Errorf("--delimiter must be a single character, got %q", csvFlags.Delimiter)
	}
	opts.Delimiter = r
	return opts, nil
}

// storeAll saves every series under its ID in one transaction.
func storeAll(cmd *cobra.Command, deps *app.Deps, datas []model.SeriesData, names []string) error {
	st, err := deps.Store()
	if err != nil {
		return err
	}
	entries := make(map[string]model.SeriesData, len(datas))
	for i, d := range datas {
		entries[names[i]] = d
	}
	if err := st.PutSeriesBatch(entries); err != nil {
		return fmt.Errorf("storing series: %w", err)
	}
	if !deps.Config.Quiet {
		for i, d := range datas {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Stored %s  (%d observations)\n", names[i], len(d.Obs))
		}
	}
	return nil
}

// emitAll renders each series in turn.
func emitAll(cmd *cobra.Command, deps *app.Deps, datas []model.SeriesData, started time.Time) error {
	for _, d := range datas {
		result := newResult(model.KindSeriesData, commandPath(cmd), d, len(d.Obs))
		if err := emit(cmd, deps, result, d.SeriesID, started); err != nil {
			return err
		}
	}
	return nil
}

// ─── import ───────────────────────────────────────────────────────────────────

var (
	importStore bool
	importName  string
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.jsonl...>",
	Short: "Read CSV or JSONL files into the pipe format or the workspace",
	Long: `Import parses files with a date and a value column. CSV files need a header
row; "." or an empty cell is a missing value. Files ending in .jsonl are read
in the pipe format.

The series ID is the file name without its extension unless --name is given.
With --store the series are saved to the workspace instead of written out.`,
	Example: `  tsprep import sensor.csv | tsprep smooth ma --window 7
  tsprep import export.csv --date-col timestamp --value-col temp_c --delimiter ';'
  tsprep import a.csv b.csv c.jsonl --store`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		if importName != "" && len(args) > 1 {
			return fmt.Errorf("--name applies to a single file")
		}
		opts, err := csvOptions()
		if err != nil {
			return err
		}
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		datas := make([]model.SeriesData, 0, len(args))
		names := make([]string, 0, len(args))
		for _, path := range args {
			d, err := readFile(path, opts)
			if err != nil {
				return err
			}
			if importName != "" {
				d.SeriesID = importName
			}
			deps.Logger.Debug("imported", "path", path, "series_id", d.SeriesID, "obs", len(d.Obs))
			datas = append(datas, d)
			names = append(names, d.SeriesID)
		}

		if importStore {
			return storeAll(cmd, deps, datas, names)
		}
		return emitAll(cmd, deps, datas, started)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	addCSVFlags(importCmd)
	importCmd.Flags().BoolVar(&importStore, "store", false, "save to the workspace under the series ID")
	importCmd.Flags().StringVar(&importName, "name", "", "series ID for a single file (default: file name)")
}
