package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"autofix/internal/registry"
	"autofix/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the analyzers and fix providers that are available",
	RunE:  runRules,
}

func init() {
	rulesCmd.Flags().StringArray("modules", nil, "analyzer module directories to load")
	rulesCmd.Flags().String("language", "", "only show providers for this language")
}

func runRules(cmd *cobra.Command, _ []string) error {
	modules, _ := cmd.Flags().GetStringArray("modules")
	language, _ := cmd.Flags().GetString("language")
	applyColorFlag(cmd)

	catalog := registry.New()
	if err := catalog.Register(rules.Module()); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, fm := range catalog.LoadModules(cmd.Context(), modules, nil) {
		warnColor.Fprintf(out, "module %s excluded: %v\n", fm.Path, fm.Err)
	}

	fmt.Fprintln(out, "analyzers:")
	for _, a := range catalog.Analyzers() {
		fmt.Fprintf(out, "  %-28s %-10s %s\n", a.ID, a.Module, ruleColor.Sprint(strings.Join(a.Rules, ", ")))
	}
	fmt.Fprintln(out, "fix providers:")
	for _, p := range catalog.Providers() {
		if language != "" && !p.Supports(language) {
			continue
		}
		kind := "single"
		if p.Batch {
			kind = "batch"
		}
		fmt.Fprintf(out, "  %-28s %-10s %-6s %s\n", p.Name, p.Module, kind, ruleColor.Sprint(strings.Join(p.Rules, ", ")))
	}
	return nil
}
