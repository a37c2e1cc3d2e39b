package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"autofix/internal/fault"
	"autofix/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "autofix",
	Short:         "Apply code fixes to a project until nothing fixable is left",
	Long:          `autofix loads a project through the metadata worker, runs the selected analyzers and applies their fixes until the project converges`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// main registers subcommands and persistent flags and executes the root
// command. The exit status follows the error kind, see exitCode.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(readerCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("config", "", "YAML config file (values are overridden by AUTOFIX_* and flags)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console|json)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("trace", "", "write trace events to file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|session|phase|pass|document)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both|log)")
	rootCmd.PersistentFlags().String("trace-format", "auto", "trace format (auto|text|ndjson)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept in ring mode")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(exitCode(err))
	}
}

// exitCode: 0 success, 1 fix failure, 2 bad configuration or unresolved
// rules, 3 worker failure, 130 canceled.
func exitCode(err error) int {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return 1
	}
	switch fe.Kind {
	case fault.KindConfiguration, fault.KindUnresolvedRule:
		return 2
	case fault.KindWorkerProcess:
		return 3
	case fault.KindCanceled:
		return 130
	default:
		return 1
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
