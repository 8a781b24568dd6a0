package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local workspace database",
	Long: `Commands for inspecting, clearing and compacting the local bbolt database.

The workspace holds series saved with --store or 'store put', results saved
with --save, and snapshots. Nothing expires; data stays until you clear it.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  tsprep cache stats`,
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

		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", st.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ROWS", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the workspace",
	Long: `Delete entries from one or all buckets.

bbolt does not shrink the database file after clearing; free pages are
reused on the next write. Run 'tsprep cache compact' to reclaim disk space.`,
	Example: `  tsprep cache clear --all
  tsprep cache clear --bucket runs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <name>\n\nBuckets: %s", strings.Join(store.AllBuckets, ", "))
		}

		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.Store()
		if err != nil {
			return err
		}

		if cacheClearAll {
			if err := st.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
		} else {
			if err := st.ClearBucket(cacheClearBucket); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", cacheClearBucket)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "  Run 'tsprep cache compact' to reclaim disk space.")
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact copies all live data to a temporary file and then replaces the
original with it. bbolt never shrinks its file on its own, so this is the way
to recover space freed by 'cache clear' or deletes.`,
	Example: `  tsprep cache compact`,
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

		fmt.Fprintf(cmd.OutOrStdout(), "Compacting %s ...\n", st.Path())
		before, after, err := st.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "✓ Compaction complete")
		fmt.Fprintf(cmd.OutOrStdout(), "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(cmd.OutOrStdout(), "  After:  %s\n", humanBytes(after))
		if saved := before - after; saved > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "  No space reclaimed.")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear all buckets")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "clear one bucket: series|runs|snapshots")
}
