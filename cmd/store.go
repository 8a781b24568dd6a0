package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/model"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Save and retrieve named series in the local workspace",
	Long: `Commands for keeping series in the local bbolt database between runs.

Any series arriving on stdin can be saved under a name and read back later
with --series <name> on the analysis commands, or as JSONL with 'store get'.
Use 'tsprep cache stats' for bucket-level storage stats.`,
}

// ─── store list ───────────────────────────────────────────────────────────────

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List series saved in the workspace",
	Example: `  tsprep store list
  tsprep store list --format csv`,
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

		infos, err := st.ListSeries()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No series in the workspace.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: tsprep import <file> --store  or  ... | tsprep store put <name>")
			return nil
		}
		return emit(cmd, deps, newResult(model.KindSeriesList, commandPath(cmd), infos, len(infos)), "", started)
	},
}

// ─── store get ────────────────────────────────────────────────────────────────

var storeGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Write a saved series (JSONL when piped)",
	Example: `  tsprep store get sensor | tsprep smooth ma --window 7
  tsprep store get sensor --format csv --out sensor.csv`,
	Args: cobra.ExactArgs(1),
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

		data, ok, err := st.GetSeries(args[0])
		if err != nil {
			return fmt.Errorf("reading series: %w", err)
		}
		if !ok {
			return fmt.Errorf("no saved series %q\n\n  Use: tsprep store list", args[0])
		}
		return emit(cmd, deps, newResult(model.KindSeriesData, commandPath(cmd), data, len(data.Obs)), data.SeriesID, started)
	},
}

// ─── store put ────────────────────────────────────────────────────────────────

var storePutCmd = &cobra.Command{
	Use:   "put <name>",
	Short: "Save the series read from stdin (or --input) under a name",
	Example: `  tsprep import sensor.csv | tsprep store put sensor
  tsprep store get sensor | tsprep transform fill | tsprep store put sensor-filled
  tsprep store put flow --input flow.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		data, err := readInput(cmd, deps)
		if err != nil {
			return err
		}
		if len(data.Obs) == 0 {
			return fmt.Errorf("no observations to save")
		}
		return storeAll(cmd, deps, []model.SeriesData{data}, []string{args[0]})
	},
}

// ─── store delete ─────────────────────────────────────────────────────────────

var storeDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Delete a saved series",
	Example: `  tsprep store delete sensor`,
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

		if _, ok, err := st.GetSeries(args[0]); err != nil {
			return fmt.Errorf("reading series: %w", err)
		} else if !ok {
			return fmt.Errorf("no saved series %q", args[0])
		}
		if err := st.DeleteSeries(args[0]); err != nil {
			return fmt.Errorf("deleting series: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted series %s\n", args[0])
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storePutCmd)
	storeCmd.AddCommand(storeDeleteCmd)

	storePutCmd.Flags().StringVar(&inputFlags.File, "input", "", "read observations from a .csv or .jsonl file instead of stdin")
	storePutCmd.Flags().StringVar(&inputFlags.ID, "id", "", "override the series ID recorded with the data")
}
