package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/triage/internal/output"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type buildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Built     string `json:"built" yaml:"built"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := buildInfo{Version: version, Commit: commit, Built: date, GoVersion: runtime.Version()}

	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}
	switch writer.Format() {
	case output.FormatJSON:
		return writer.WriteJSON(info)
	case output.FormatYAML:
		return writer.WriteYAML(info)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "triage %s (commit: %s, built: %s, %s)\n",
		info.Version, info.Commit, info.Built, info.GoVersion)
	return err
}
