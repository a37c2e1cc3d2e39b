package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autofix/internal/config"
	"autofix/internal/diag"
	"autofix/internal/driver"
	"autofix/internal/fault"
	"autofix/internal/fix"
	"autofix/internal/logging"
	"autofix/internal/observ"
	"autofix/internal/reader"
	"autofix/internal/registry"
	"autofix/internal/rules"
	"autofix/internal/session"
)

var fixCmd = &cobra.Command{
	Use:   "fix [flags] [project]",
	Short: "Apply fixes for the selected rules until the project converges",
	Long: "Load the project through the metadata worker, run the analyzers of the selected rules " +
		"and apply their fixes one by one (or rule by rule for batch providers) until no fixable diagnostic is left.",
	Args: cobra.MaximumNArgs(1),
	RunE: runFix,
}

func init() {
	addFixFlags(fixCmd)
}

func addFixFlags(cmd *cobra.Command) {
	addProjectFlags(cmd)
	f := cmd.Flags()
	f.Int("max-passes", 0, fmt.Sprintf("fix passes before giving up (0 = %d)", fix.DefaultMaxPasses))
	f.String("ui", "auto", "progress UI (auto|on|off)")
}

// addProjectFlags registers the flags shared by fix and check.
func addProjectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("project", "", "project file to fix (or the positional argument)")
	f.String("language", "", "language of the project's documents")
	f.StringArray("rules", nil, "rule ids to fix, ';' or ',' separated, repeatable")
	f.StringArray("modules", nil, "analyzer module directories to load")
	f.StringArray("exclude-modules", nil, "module directories to skip")
	f.StringArray("additional-file", nil, "file added to the project as an additional document")
	f.String("settings", "", "autofix.ini settings file")
	f.StringArray("nowarn", nil, "rule ids to suppress")
	f.StringArray("warnaserror", nil, "rule ids to escalate to errors")
	f.String("ruleset", "", "rule set file with severity overrides")
	f.StringArray("symbols", nil, "preprocessor symbols, ';' separated")
	f.StringArrayP("property", "p", nil, "global property passed to the metadata worker (Name=Value)")
	f.String("reader", "", "path to the "+reader.ExecutableName+" executable")
	f.Duration("reader-timeout", 0, "timeout of one metadata worker request")
	f.String("lifetime", "", "session lifetime (per-build|long-lived)")
	f.Int("jobs", 0, "analyzers run in parallel (0 = number of CPUs)")
	f.String("metrics-file", "", "write Prometheus metrics in text format to this file")
}

func runFix(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cleanup, err := setupTracing(cmd, log)
	if err != nil {
		return err
	}
	defer func() { cleanup(err != nil) }()
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "ui")
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	showTimings, _ := cmd.Root().PersistentFlags().GetBool("timings")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	applyColorFlag(cmd)

	metrics := observ.NewMetrics()
	scope, catalog, err := newSession(cfg, log, metrics)
	if err != nil {
		return err
	}
	defer closeSession(cmd, scope, log)

	timer := observ.NewTimer(metrics)
	run := func(ctx context.Context, sink fix.ProgressSink) (*driver.Outcome, error) {
		return driver.Run(ctx, scope, catalog, cfg, driver.Options{
			Logger:   log,
			Metrics:  metrics,
			Progress: sink,
			Timer:    timer,
		})
	}

	var out *driver.Outcome
	if progressView(mode, quiet, cmd.OutOrStdout()) {
		out, err = runFixWithUI(cmd.Context(), filepath.Base(cfg.ProjectPath), config.SplitList(cfg.Rules...), run)
	} else {
		out, err = run(cmd.Context(), nil)
	}

	if out != nil && !quiet {
		printSummary(cmd.OutOrStdout(), out, err)
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	if metricsFile != "" {
		if werr := metrics.WriteFile(metricsFile); werr != nil {
			log.Warn("writing metrics", zap.String("path", metricsFile), zap.Error(werr))
		}
	}
	return err
}

func newSession(cfg *config.Config, log *zap.Logger, metrics *observ.Metrics) (*session.Scope, *registry.Catalog, error) {
	lifetime, err := session.ParseLifetime(cfg.Lifetime)
	if err != nil {
		return nil, nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "lifetime")
	}
	scope := session.New(lifetime,
		session.WithLogger(log),
		session.WithMetrics(metrics),
		session.WithWatch(lifetime == session.LifetimeLongLived),
		session.WithReaderConfig(reader.Config{
			Path:             cfg.ReaderPath,
			GlobalProperties: cfg.GlobalProperties,
			Timeout:          cfg.ReaderTimeout,
		}),
	)
	catalog := registry.New(registry.WithLogger(log), registry.WithMetrics(metrics))
	if err := catalog.Register(rules.Module()); err != nil {
		return nil, nil, err
	}
	return scope, catalog, nil
}

func closeSession(cmd *cobra.Command, scope *session.Scope, log *zap.Logger) {
	if err := scope.Close(context.WithoutCancel(cmd.Context())); err != nil {
		log.Warn("closing session", zap.Error(err))
	}
}

// loadConfig layers the config file, AUTOFIX_* variables and the flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	file, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		cfg.ProjectPath = args[0]
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if cfg.ProjectPath != "" {
		if abs, err := filepath.Abs(cfg.ProjectPath); err == nil {
			cfg.ProjectPath = abs
		}
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	list := func(name string, dst *[]string) {
		if flags.Changed(name) {
			values, _ := flags.GetStringArray(name)
			*dst = append(*dst, values...)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	str("project", &cfg.ProjectPath)
	str("language", &cfg.Language)
	str("settings", &cfg.SettingsFile)
	str("ruleset", &cfg.RuleSet)
	str("reader", &cfg.ReaderPath)
	str("lifetime", &cfg.Lifetime)
	list("rules", &cfg.Rules)
	list("modules", &cfg.Modules)
	list("exclude-modules", &cfg.ExcludeModules)
	list("additional-file", &cfg.AdditionalFiles)
	list("nowarn", &cfg.NoWarn)
	list("warnaserror", &cfg.WarningsAsErrors)
	list("symbols", &cfg.Symbols)
	num("jobs", &cfg.Jobs)
	num("max-passes", &cfg.MaxPasses)

	if flags.Changed("reader-timeout") {
		d, err := flags.GetDuration("reader-timeout")
		if err != nil {
			return err
		}
		cfg.ReaderTimeout = d
	}
	if flags.Changed("property") {
		pairs, _ := flags.GetStringArray("property")
		props, err := config.ParseProperties(pairs)
		if err != nil {
			return err
		}
		if cfg.GlobalProperties == nil {
			cfg.GlobalProperties = make(map[string]string, len(props))
		}
		for k, v := range props {
			cfg.GlobalProperties[k] = v
		}
	}
	return nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	opts := cfg.Log
	if v, _ := cmd.Root().PersistentFlags().GetString("log-level"); v != "" {
		opts.Level = v
	}
	if v, _ := cmd.Root().PersistentFlags().GetString("log-format"); v != "" {
		opts.Format = v
	}
	log, err := logging.New(opts)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "logging")
	}
	return log, nil
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
