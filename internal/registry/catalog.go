// Package registry keeps the analyzers and fix providers available to a
// session and filters them down to the requested rules.
package registry

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/observ"
	"autofix/internal/plugin"
	"autofix/internal/script"
	"autofix/internal/source"
)

// FailedModule is a module that could not be loaded and was excluded.
type FailedModule struct {
	Path string
	Err  error
}

type analyzerEntry struct {
	desc plugin.AnalyzerDescriptor
	impl plugin.Analyzer
}

type providerEntry struct {
	desc plugin.FixProviderDescriptor
	impl plugin.FixProvider
}

// Catalog is filled once per session and read afterwards.
type Catalog struct {
	log     *zap.Logger
	metrics *observ.Metrics

	modules   []string
	analyzers []analyzerEntry
	providers []providerEntry
	failed    []FailedModule
}

type Option func(*Catalog)

func WithLogger(log *zap.Logger) Option {
	return func(c *Catalog) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *observ.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

func New(opts ...Option) *Catalog {
	c := &Catalog{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a module. Invalid declarations are skipped with a
// warning; a module built for a newer host is rejected as a whole.
func (c *Catalog) Register(m plugin.Module) error {
	if m.HostVersion > plugin.HostVersion {
		return fault.Newf(fault.KindModuleLoad, diag.ModuleIncompatible,
			"module %s requires host version %d, have %d", m.Name, m.HostVersion, plugin.HostVersion)
	}
	log := c.log.With(zap.String("module", m.Name))
	for _, a := range m.Analyzers {
		if a == nil {
			continue
		}
		desc := plugin.DescribeAnalyzer(m.Name, a)
		if reason := c.checkAnalyzer(desc); reason != "" {
			log.Warn("analyzer skipped", zap.String("analyzer", desc.ID), zap.String("reason", reason),
				zap.String("code", diag.ModuleDeclaration.ID()))
			continue
		}
		c.analyzers = append(c.analyzers, analyzerEntry{desc: desc, impl: a})
	}
	for _, p := range m.Providers {
		if p == nil {
			continue
		}
		desc := plugin.DescribeProvider(m.Name, p)
		if reason := c.checkProvider(desc); reason != "" {
			log.Warn("fix provider skipped", zap.String("provider", desc.Name), zap.String("reason", reason),
				zap.String("code", diag.ModuleDeclaration.ID()))
			continue
		}
		c.providers = append(c.providers, providerEntry{desc: desc, impl: p})
	}
	c.modules = append(c.modules, m.Name)
	log.Debug("module registered", zap.Int("analyzers", len(m.Analyzers)), zap.Int("providers", len(m.Providers)))
	return nil
}

func (c *Catalog) checkAnalyzer(d plugin.AnalyzerDescriptor) string {
	if strings.TrimSpace(d.ID) == "" {
		return "missing id"
	}
	if len(d.Rules) == 0 {
		return "declares no rules"
	}
	for _, e := range c.analyzers {
		if e.desc.ID == d.ID {
			return "duplicate analyzer id"
		}
	}
	return ""
}

func (c *Catalog) checkProvider(d plugin.FixProviderDescriptor) string {
	if strings.TrimSpace(d.Name) == "" {
		return "missing name"
	}
	if len(d.Rules) == 0 {
		return "fixes no rules"
	}
	if len(d.Languages) == 0 {
		return "supports no language"
	}
	for _, e := range c.providers {
		if e.desc.Name == d.Name {
			return "duplicate provider name"
		}
	}
	return ""
}

// LoadModules loads script modules from paths. Failures never abort: the
// module is logged, excluded and recorded in FailedModules.
func (c *Catalog) LoadModules(ctx context.Context, paths, exclude []string) []FailedModule {
	excluded := make(map[string]bool, len(exclude))
	for _, p := range exclude {
		if canon, err := source.CanonicalPath(script.ManifestPath(p)); err == nil {
			excluded[canon] = true
		}
	}
	var failed []FailedModule
	fail := func(path string, err error) {
		c.log.Warn("module not loaded", zap.String("path", path), zap.Error(err))
		c.metrics.ModuleFailed()
		failed = append(failed, FailedModule{Path: path, Err: err})
	}
	for _, path := range paths {
		if canon, err := source.CanonicalPath(script.ManifestPath(path)); err == nil && excluded[canon] {
			fail(path, fault.Newf(fault.KindModuleLoad, diag.ModuleLoadFailed, "module %s excluded", path))
			continue
		}
		mod, warnings, err := script.Load(ctx, path)
		for _, w := range warnings {
			c.log.Warn("declaration skipped", zap.String("path", path), zap.Error(w))
		}
		if err != nil {
			fail(path, err)
			continue
		}
		if err := c.Register(*mod); err != nil {
			fail(path, err)
		}
	}
	c.failed = append(c.failed, failed...)
	return failed
}

func (c *Catalog) FailedModules() []FailedModule { return slices.Clone(c.failed) }

func (c *Catalog) Modules() []string { return slices.Clone(c.modules) }

func (c *Catalog) Analyzers() []plugin.AnalyzerDescriptor {
	out := make([]plugin.AnalyzerDescriptor, 0, len(c.analyzers))
	for _, e := range c.analyzers {
		out = append(out, e.desc)
	}
	return out
}

func (c *Catalog) Providers() []plugin.FixProviderDescriptor {
	out := make([]plugin.FixProviderDescriptor, 0, len(c.providers))
	for _, e := range c.providers {
		out = append(out, e.desc)
	}
	return out
}
