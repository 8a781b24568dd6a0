package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the release string. Tagged builds overwrite it via:
//
//	go build -ldflags "-X github.com/derickschaefer/tsprep/cmd.Version=v0.2.0"
var Version = "v0.1.0"

// BuildTime is optionally injected alongside Version:
//
//	-ldflags "-X github.com/derickschaefer/tsprep/cmd.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = ""

type versionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`
	BuildTime string `json:"build_time,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tsprep version and build information",
	Long: `Print the tsprep version string and build metadata.

Output is plain text unless --format json or jsonl is given.

Examples:
  tsprep version
  tsprep version --format json | jq .version`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := "text"
		if f := cmd.Flags().Lookup("format"); f != nil && f.Changed {
			format = f.Value.String()
		}

		info := versionInfo{
			Version:   Version,
			GoVersion: runtime.Version(),
			GOOS:      runtime.GOOS,
			GOARCH:    runtime.GOARCH,
			BuildTime: BuildTime,
		}

		switch format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "jsonl":
			b, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
			return nil
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "tsprep %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "go     %s\n", info.GoVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "os     %s/%s\n", info.GOOS, info.GOARCH)
			if info.BuildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built  %s\n", info.BuildTime)
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
