package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and replay exact command lines",
	Long: `Snapshots let you save a tsprep command and replay it later,
producing reproducible output from the same parameters.

  tsprep snapshot save --name "sensor-adf" --cmd "analyze adf --series sensor --regression ct"
  tsprep snapshot list
  tsprep snapshot run <ID>`,
}

// ─── snapshot save ────────────────────────────────────────────────────────────

var (
	snapshotSaveName string
	snapshotSaveCmd  string
)

var snapshotSaveCommand = &cobra.Command{
	Use:   "save",
	Short: "Save a command line as a named snapshot",
	Example: `  tsprep snapshot save --name "sensor-flags" --cmd "anomaly both --series sensor"
  tsprep snapshot save --name "flow-season" --cmd "decompose --series flow --period 24 --format csv"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotSaveName == "" {
			return fmt.Errorf("--name is required")
		}
		if snapshotSaveCmd == "" {
			return fmt.Errorf("--cmd is required")
		}
		if _, err := splitCommandLine(snapshotSaveCmd); err != nil {
			return fmt.Errorf("--cmd: %w", err)
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

		id := newSnapshotID()
		snap := store.Snapshot{
			ID:          id,
			Name:        snapshotSaveName,
			CommandLine: snapshotSaveCmd,
			CreatedAt:   time.Now().UTC(),
		}
		if err := st.PutSnapshot(snap); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved snapshot %s  (%s)\n", id, snapshotSaveName)
		return nil
	},
}

// ─── snapshot list ────────────────────────────────────────────────────────────

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all saved snapshots",
	Example: `  tsprep snapshot list`,
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

		snaps, err := st.ListSnapshots()
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: tsprep snapshot save --name <name> --cmd \"<command>\"")
			return nil
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"ID", "NAME", "COMMAND", "CREATED"}, func(add func(...string)) {
			for _, s := range snaps {
				cmdPreview := s.CommandLine
				if len(cmdPreview) > 50 {
					cmdPreview = cmdPreview[:47] + "..."
				}
				add(s.ID, s.Name, cmdPreview, s.CreatedAt.Format("2006-01-02 15:04"))
			}
		})
		return nil
	},
}

// ─── snapshot show ────────────────────────────────────────────────────────────

var snapshotShowCmd = &cobra.Command{
	Use:     "show <ID>",
	Short:   "Show full details of a snapshot",
	Example: `  tsprep snapshot show 01HX...`,
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

		snap, ok, err := st.GetSnapshot(args[0])
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if !ok {
			return fmt.Errorf("snapshot %q not found", args[0])
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, func(add func(...string)) {
			add("ID", snap.ID)
			add("Name", snap.Name)
			add("Command", snap.CommandLine)
			add("Created", snap.CreatedAt.Format(time.RFC3339))
		})
		return nil
	},
}

// ─── snapshot run ─────────────────────────────────────────────────────────────

var snapshotRunCmd = &cobra.Command{
	Use:     "run <ID>",
	Short:   "Re-execute a saved snapshot",
	Example: `  tsprep snapshot run 01HX...`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		st, err := deps.Store()
		if err != nil {
			return err
		}

		// Read snapshot BEFORE closing the store
		snap, ok, err := st.GetSnapshot(args[0])
		deps.Close() // Close now: child process will open its own handle
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if !ok {
			return fmt.Errorf("snapshot %q not found", args[0])
		}

		// Re-execute using the current binary with the stored command line.
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("finding executable: %w", err)
		}

		parts, err := splitCommandLine(snap.CommandLine)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		// The child must see the same workspace.
		if cmd.Flags().Changed("db") {
			parts = append(parts, "--db", deps.Config.DBPath)
		}
		c := exec.CommandContext(cmd.Context(), self, parts...)
		c.Stdin = cmd.InOrStdin()
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "▶ %s %s\n\n", self, snap.CommandLine)
		}
		return c.Run()
	},
}

// ─── snapshot delete ──────────────────────────────────────────────────────────

var snapshotDeleteCmd = &cobra.Command{
	Use:     "delete <ID>",
	Short:   "Delete a saved snapshot",
	Example: `  tsprep snapshot delete 01HX...`,
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

		snap, ok, err := st.GetSnapshot(args[0])
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if !ok {
			return fmt.Errorf("snapshot %q not found", args[0])
		}

		if err := st.DeleteSnapshot(args[0]); err != nil {
			return fmt.Errorf("deleting snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted snapshot %s  (%s)\n", snap.ID, snap.Name)
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSaveCommand)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotRunCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotSaveCommand.Flags().StringVar(&snapshotSaveName, "name", "", "human-readable name for the snapshot (required)")
	snapshotSaveCommand.Flags().StringVar(&snapshotSaveCmd, "cmd", "", "command line to save, without the binary name (required)")
	snapshotSaveCommand.MarkFlagRequired("name")
	snapshotSaveCommand.MarkFlagRequired("cmd")
}

// ─── ID generation ────────────────────────────────────────────────────────────

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// newSnapshotID returns a 26-character, time-sortable ID in the ULID text
// form: a UUIDv7 (millisecond timestamp first, monotonic within the
// process) written in Crockford base32.
func newSnapshotID() string {
	u := uuid.Must(uuid.NewV7())
	return encodeCrockford(u)
}

// encodeCrockford writes 128 bits as 26 base32 digits, most significant
// first. The 130-bit digit space is padded with two leading zero bits.
func encodeCrockford(b [16]byte) string {
	out := make([]byte, 26)
	for i := range out {
		var v byte
		for j := 0; j < 5; j++ {
			bit := i*5 + j - 2
			v <<= 1
			if bit >= 0 && b[bit/8]&(0x80>>(bit%8)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
	}
	return string(out)
}

// splitCommandLine splits s into arguments on whitespace, honouring single
// and double quotes so saved titles and paths may contain spaces.
func splitCommandLine(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune
	inArg := false
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in command line", quote)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
