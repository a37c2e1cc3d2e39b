package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autofix/internal/trace"
)

// setupTracing builds the tracer the --trace* flags describe and stores it
// in the command context. The returned cleanup flushes and closes it; when
// failed is set the recorded tail goes to stderr unless the events were
// already streamed there.
func setupTracing(cmd *cobra.Command, log *zap.Logger) (func(failed bool), error) {
	flags := cmd.Root().PersistentFlags()
	output, _ := flags.GetString("trace")
	levelFlag, _ := flags.GetString("trace-level")
	modeFlag, _ := flags.GetString("trace-mode")
	formatFlag, _ := flags.GetString("trace-format")
	ringSize, _ := flags.GetInt("trace-ring-size")

	level, err := trace.ParseLevel(levelFlag)
	if err != nil {
		return nil, err
	}
	// --trace без уровня включает фазы
	if level == trace.LevelOff && output != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		return func(bool) {}, nil
	}
	mode, err := trace.ParseMode(modeFlag)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(formatFlag)
	if err != nil {
		return nil, err
	}
	if output == "" {
		output = "-"
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: output,
		RingSize:   ringSize,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	stderr := cmd.ErrOrStderr()
	return func(failed bool) {
		if rec, ok := trace.Recording(tracer); ok && failed && (mode == trace.ModeRing || output != "-") {
			if err := rec.Dump(stderr, format); err != nil {
				fmt.Fprintf(stderr, "trace: dump: %v\n", err)
			}
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(stderr, "trace: close: %v\n", err)
		}
	}, nil
}
