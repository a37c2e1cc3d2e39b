package registry

import (
	"slices"
	"strings"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/plugin"
)

// Selection is the part of a catalog a session works with.
type Selection struct {
	Rules     []string
	Language  string
	Analyzers []plugin.Analyzer

	providers map[string][]plugin.FixProvider
	declared  map[string]plugin.RuleDescriptor
}

// Select keeps analyzers declaring at least one requested rule and
// providers supporting language and at least one requested rule. Every
// rule must have a provider (AF005) and an analyzer (AF010).
func (c *Catalog) Select(rules []string, language string) (*Selection, error) {
	want := normalizeRules(rules)
	sel := &Selection{
		Rules:     want,
		Language:  language,
		providers: make(map[string][]plugin.FixProvider, len(want)),
		declared:  make(map[string]plugin.RuleDescriptor),
	}
	requested := func(id string) bool {
		_, ok := slices.BinarySearch(want, id)
		return ok
	}

	for _, e := range c.analyzers {
		if !slices.ContainsFunc(e.desc.Rules, requested) {
			continue
		}
		sel.Analyzers = append(sel.Analyzers, e.impl)
		for _, r := range e.impl.Rules() {
			if _, seen := sel.declared[r.ID]; !seen {
				sel.declared[r.ID] = r
			}
		}
	}
	for _, e := range c.providers {
		if !e.desc.Supports(language) {
			continue
		}
		for _, rule := range e.desc.Rules {
			if requested(rule) {
				sel.providers[rule] = append(sel.providers[rule], e.impl)
			}
		}
	}

	var noProvider, noAnalyzer []string
	for _, rule := range want {
		if len(sel.providers[rule]) == 0 {
			noProvider = append(noProvider, rule)
		}
		if _, ok := sel.declared[rule]; !ok {
			noAnalyzer = append(noAnalyzer, rule)
		}
	}
	if len(noProvider) > 0 {
		return nil, fault.Newf(fault.KindUnresolvedRule, diag.NoFixProvider,
			"no fix provider for %s rules: %s", language, strings.Join(noProvider, ", "))
	}
	if len(noAnalyzer) > 0 {
		return nil, fault.Newf(fault.KindUnresolvedRule, diag.NoAnalyzer,
			"no analyzer for rules: %s", strings.Join(noAnalyzer, ", "))
	}
	return sel, nil
}

func normalizeRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Requested reports whether rule is one of the selected rules.
func (s *Selection) Requested(rule string) bool {
	_, ok := slices.BinarySearch(s.Rules, rule)
	return ok
}

// Declared reports whether a selected analyzer declares rule.
func (s *Selection) Declared(rule string) bool {
	_, ok := s.declared[rule]
	return ok
}

// DefaultSeverity of rule as declared by its analyzer.
func (s *Selection) DefaultSeverity(rule string) diag.Severity {
	if d, ok := s.declared[rule]; ok {
		return d.DefaultSeverity
	}
	return diag.SevWarning
}

// Providers returns the providers of rule in registration order.
func (s *Selection) Providers(rule string) []plugin.FixProvider {
	return s.providers[rule]
}

// BatchProvider returns the first batch-capable provider of rule.
func (s *Selection) BatchProvider(rule string) (plugin.BatchFixProvider, bool) {
	for _, p := range s.providers[rule] {
		if bp, ok := p.(plugin.BatchFixProvider); ok {
			return bp, true
		}
	}
	return nil, false
}
