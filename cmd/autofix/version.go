package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"autofix/internal/plugin"
	"autofix/internal/project"
	"autofix/internal/rpc"
	"autofix/internal/version"
)

// buildInfo is what `autofix version` reports. The compatibility numbers
// matter when a module or a worker binary comes from another release.
type buildInfo struct {
	Tool       string `json:"tool"`
	Version    string `json:"version"`
	Protocol   uint16 `json:"protocol"`
	Schema     uint16 `json:"schema"`
	Host       int    `json:"host"`
	Go         string `json:"go"`
	GitCommit  string `json:"git_commit,omitempty"`
	GitMessage string `json:"git_message,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the autofix version, build metadata and compatibility numbers",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("message", false, "include git commit message")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "show all recorded build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	full, _ := cmd.Flags().GetBool("full")
	want := func(name string) bool {
		on, _ := cmd.Flags().GetBool(name)
		return on || full
	}

	info := buildInfo{
		Tool:     "autofix",
		Version:  orDefault(version.Version, "dev"),
		Protocol: rpc.ProtocolVersion,
		Schema:   project.SchemaVersion,
		Host:     plugin.HostVersion,
		Go:       runtime.Version(),
	}
	if want("hash") {
		info.GitCommit = orDefault(version.GitCommit, "unknown")
	}
	if want("message") {
		info.GitMessage = orDefault(version.GitMessage, "unknown")
	}
	if want("date") {
		info.BuildDate = orDefault(version.BuildDate, "unknown")
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "pretty":
		applyColorFlag(cmd)
		printVersion(cmd.OutOrStdout(), info)
		return nil
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}

func printVersion(out io.Writer, info buildInfo) {
	fmt.Fprintf(out, "autofix %s\n", version.Colored())
	fmt.Fprintf(out, "protocol %d, schema %d, module host %d, %s\n", info.Protocol, info.Schema, info.Host, info.Go)
	for _, row := range [][2]string{
		{"commit", info.GitCommit},
		{"message", info.GitMessage},
		{"built", info.BuildDate},
	} {
		if row[1] != "" {
			fmt.Fprintf(out, "%-8s %s\n", row[0]+":", row[1])
		}
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
