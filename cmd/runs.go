package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/analyze"
	"github.com/derickschaefer/tsprep/internal/model"
	"github.com/derickschaefer/tsprep/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect analysis results saved with --save",
	Long: `Every command run with --save records its result envelope in the workspace.
'runs show' renders a saved result again in any output format.

  tsprep anomaly iqr --series sensor --save
  tsprep runs list
  tsprep runs show run-000001 --format json`,
}

// ─── runs list ────────────────────────────────────────────────────────────────

var runsListKind string

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, oldest first",
	Example: `  tsprep runs list
  tsprep runs list --kind stationarity`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.Store()
		if err != nil {
			return err
		}

		runs, err := st.ListRuns(runsListKind)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved runs.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Add --save to any analysis command to record its result.")
			return nil
		}
		return emit(cmd, deps, newResult(model.KindRunList, commandPath(cmd), runs, len(runs)), "", started)
	},
}

// ─── runs show ────────────────────────────────────────────────────────────────

var runsShowCmd = &cobra.Command{
	Use:     "show <ID>",
	Short:   "Render a saved run",
	Example: `  tsprep runs show run-000003 --format md`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.Store()
		if err != nil {
			return err
		}

		run, ok, err := st.GetRun(args[0])
		if err != nil {
			return fmt.Errorf("reading run: %w", err)
		}
		if !ok {
			return fmt.Errorf("run %q not found", args[0])
		}
		result, err := decodeResult(run.Result)
		if err != nil {
			return fmt.Errorf("run %s: %w", run.ID, err)
		}

		// A replay is never saved again and keeps its recorded duration.
		save := globalFlags.Save
		globalFlags.Save = false
		defer func() { globalFlags.Save = save }()
		started := time.Now().Add(-time.Duration(result.Stats.DurationMs) * time.Millisecond)
		return emit(cmd, deps, result, run.SeriesID, started)
	},
}

// ─── runs delete ──────────────────────────────────────────────────────────────

var runsDeleteCmd = &cobra.Command{
	Use:     "delete <ID>",
	Short:   "Delete a saved run",
	Example: `  tsprep runs delete run-000003`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.Store()
		if err != nil {
			return err
		}

		if _, ok, err := st.GetRun(args[0]); err != nil {
			return fmt.Errorf("reading run: %w", err)
		} else if !ok {
			return fmt.Errorf("run %q not found", args[0])
		}
		if err := st.DeleteRun(args[0]); err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted run %s\n", args[0])
		return nil
	},
}

// ─── Decoding ─────────────────────────────────────────────────────────────────

// decodeResult rebuilds a Result from its stored JSON, decoding Data into
// the value type its Kind names so it renders like the original.
func decodeResult(raw []byte) (*model.Result, error) {
	var env struct {
		Kind        string            `json:"kind"`
		GeneratedAt time.Time         `json:"generated_at"`
		Command     string            `json:"command"`
		Data        json.RawMessage   `json:"data"`
		Warnings    []string          `json:"warnings"`
		Stats       model.ResultStats `json:"stats"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}

	var data interface{}
	var err error
	switch env.Kind {
	case model.KindSeriesData:
		data, err = decodeAs[model.SeriesData](env.Data)
	case model.KindSmoothed:
		data, err = decodeAs[model.SmoothedSeries](env.Data)
	case model.KindAnomalies:
		if bytes.HasPrefix(bytes.TrimSpace(env.Data), []byte("[")) {
			data, err = decodeAs[[]model.AnomalyReport](env.Data)
		} else {
			data, err = decodeAs[model.AnomalyReport](env.Data)
		}
	case model.KindDecomposition:
		data, err = decodeAs[model.Decomposition](env.Data)
	case model.KindSpectrum:
		data, err = decodeAs[model.Spectrum](env.Data)
	case model.KindStationarity:
		data, err = decodeAs[model.StationarityResult](env.Data)
	case model.KindSummary:
		data, err = decodeAs[analyze.Summary](env.Data)
	case model.KindTrend:
		data, err = decodeAs[analyze.TrendResult](env.Data)
	case model.KindACF:
		data, err = decodeAs[analyze.ACFResult](env.Data)
	case model.KindSeriesList:
		data, err = decodeAs[[]store.SeriesInfo](env.Data)
	default:
		data = env.Data
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Kind, err)
	}

	return &model.Result{
		Kind:        env.Kind,
		GeneratedAt: env.GeneratedAt,
		Command:     env.Command,
		Data:        data,
		Warnings:    env.Warnings,
		Stats:       env.Stats,
	}, nil
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	runsListCmd.Flags().StringVar(&runsListKind, "kind", "", "only runs of this result kind (e.g. anomalies, stationarity)")
}
