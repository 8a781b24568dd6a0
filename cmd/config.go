package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/tsprep/internal/config"
	"github.com/derickschaefer/tsprep/internal/render"
)

const defaultConfigFile = config.ConfigName + ".yaml"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tsprep configuration",
	Long: `Read and write tsprep configuration.

Settings resolve from built-in defaults, then tsprep.yaml (or .json/.toml) in
the working directory or ~/.tsprep, then TSPREP_<KEY> environment variables,
then command-line flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Example: `  tsprep config init
  tsprep config init ~/.tsprep/tsprep.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigFile
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (delete it first to re-initialise)", path)
		}
		if err := config.WriteTemplate(config.New(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"get"},
	Short:   "Print the resolved configuration",
	Example: `  tsprep config show
  TSPREP_IQR_K=3 tsprep config show --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()
		cfg := deps.Config

		src := "(none found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		if f := resolveFormat(cfg.Format); f == render.FormatJSON || f == render.FormatJSONL {
			out := make(map[string]string, len(config.Keys)+1)
			for _, kv := range cfg.Settings() {
				out[kv[0]] = kv[1]
			}
			out["config_file"] = src
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		var rows [][]string
		for _, kv := range cfg.Settings() {
			rows = append(rows, []string{kv[0], kv[1]})
		}
		rows = append(rows, []string{"config_file", src})
		printKVTableTo(cmd.OutOrStdout(), rows)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Example: `  tsprep config set iqr_k 2
  tsprep config set db_path /data/tsprep.db --config team.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := globalFlags.ConfigPath
		if path == "" {
			path = defaultConfigFile
		}
		key := strings.ToLower(args[0])
		if err := config.SetValue(path, key, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
