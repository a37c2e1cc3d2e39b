package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"autofix/internal/diag"
	"autofix/internal/driver"
	"autofix/internal/fault"
	"autofix/internal/fix"
	"autofix/internal/ui"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	ruleColor = color.New(color.FgCyan)
)

func severityColor(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return failColor
	case diag.SevWarning:
		return warnColor
	default:
		return color.New(color.FgWhite)
	}
}

// applyColorFlag honours --color; auto keeps fatih/color's own terminal
// detection.
func applyColorFlag(cmd *cobra.Command) {
	value, _ := cmd.Root().PersistentFlags().GetString("color")
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "always":
		color.NoColor = false
	case "off", "never":
		color.NoColor = true
	}
}

func printSummary(out io.Writer, o *driver.Outcome, err error) {
	for _, fm := range o.FailedModules {
		warnColor.Fprintf(out, "module %s excluded: %v\n", fm.Path, fm.Err)
	}
	for _, rule := range ui.Summary(o.Applied) {
		fmt.Fprintf(out, "  %s %d\n", ruleColor.Sprintf("%-8s", rule), o.Applied[rule])
	}
	switch {
	case err == nil && o.State == fix.Converged:
		okColor.Fprint(out, "converged")
		fmt.Fprintf(out, ": %s in %d passes (%.1f ms)\n", fixCount(o.Total()), o.Passes, toMillis(o.Elapsed))
	default:
		failColor.Fprint(out, "failed")
		fmt.Fprintf(out, ": %s applied before the failure\n", fixCount(o.Total()))
	}
}

func fixCount(n int) string {
	if n == 1 {
		return "1 fix"
	}
	return fmt.Sprintf("%d fixes", n)
}

// formatError renders err with its kind so scripts can tell failures apart.
func formatError(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s %s", failColor.Sprint(fe.Kind.String()+":"), fe.Error())
	}
	return failColor.Sprint("error: ") + err.Error()
}
