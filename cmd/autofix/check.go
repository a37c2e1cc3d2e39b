package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autofix/internal/diag"
	"autofix/internal/driver"
	"autofix/internal/observ"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [project]",
	Short: "Report the diagnostics fix would work on, without changing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	addProjectFlags(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
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
	applyColorFlag(cmd)
	showTimings, _ := cmd.Root().PersistentFlags().GetBool("timings")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	metrics := observ.NewMetrics()
	scope, catalog, err := newSession(cfg, log, metrics)
	if err != nil {
		return err
	}
	defer closeSession(cmd, scope, log)

	timer := observ.NewTimer(metrics)
	bag, out, err := driver.Check(cmd.Context(), scope, catalog, cfg, driver.Options{
		Logger:  log,
		Metrics: metrics,
		Timer:   timer,
	})
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	if metricsFile != "" {
		if werr := metrics.WriteFile(metricsFile); werr != nil {
			log.Warn("writing metrics", zap.String("path", metricsFile), zap.Error(werr))
		}
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, fm := range out.FailedModules {
		warnColor.Fprintf(w, "module %s excluded: %v\n", fm.Path, fm.Err)
	}
	for _, d := range bag.Items() {
		fmt.Fprintf(w, "%s: %s %s: %s\n", d.Location, severityColor(d.Severity).Sprint(d.Severity), ruleColor.Sprint(d.RuleID), d.Message)
	}
	if n := bag.Len(); n > 0 {
		tally := bag.Tally()
		return fmt.Errorf("%d fixable diagnostics (%d errors, %d warnings)", n, tally[diag.SevError], tally[diag.SevWarning])
	}
	okColor.Fprintln(w, "clean")
	return nil
}
