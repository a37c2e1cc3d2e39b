// Command autofix-reader is the metadata worker. It serves framed requests
// on stdin/stdout for one autofix process; logs go to stderr.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autofix/internal/logging"
	"autofix/internal/reader/worker"
	"autofix/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "autofix-reader",
	Short:         "Project metadata worker for autofix",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serve,
}

func init() {
	rootCmd.Flags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.Flags().String("log-format", "json", "log format (console|json)")
	rootCmd.Flags().Int("cache-size", 0, "evaluated project files kept in memory (0 = default)")
}

func main() {
	rootCmd.Version = version.String()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	cacheSize, _ := cmd.Flags().GetInt("cache-size")

	log, err := logging.New(logging.Options{
		Level:  level,
		Format: format,
		Output: os.Stderr,
		Fields: map[string]string{"component": "worker"},
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := []worker.Option{worker.WithLogger(log)}
	if cacheSize > 0 {
		opts = append(opts, worker.WithCacheSize(cacheSize))
	}
	srv, err := worker.NewServer(opts...)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	log.Debug("worker started", zap.Int("pid", os.Getpid()), zap.String("version", version.Version))
	err = srv.Serve(cmd.Context(), os.Stdin, out)
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	log.Debug("worker stopped", zap.Uint64("evaluations", srv.Evaluations()), zap.Error(err))
	return err
}
