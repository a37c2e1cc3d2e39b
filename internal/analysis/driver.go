// Package analysis runs the selected analyzers over the documents of one
// project and turns what they report into located, severity-resolved
// diagnostics.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/graph"
	"autofix/internal/observ"
	"autofix/internal/plugin"
	"autofix/internal/project"
	"autofix/internal/registry"
	"autofix/internal/source"
	"autofix/internal/trace"
)

const settingsCacheSize = 64

type Options struct {
	Jobs    int
	Symbols []string
	Logger  *zap.Logger
	Metrics *observ.Metrics
}

type Driver struct {
	sel     *registry.Selection
	jobs    int
	symbols []string
	log     *zap.Logger
	metrics *observ.Metrics

	// settings files parsed per (document, version)
	settings *lru.Cache[docKey, map[string]string]
}

type docKey struct {
	id      source.FileID
	version uint64
}

func New(sel *registry.Selection, opts Options) (*Driver, error) {
	cache, err := lru.New[docKey, map[string]string](settingsCacheSize)
	if err != nil {
		return nil, err
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		sel:      sel,
		jobs:     jobs,
		symbols:  opts.Symbols,
		log:      log.Named("analysis"),
		metrics:  opts.Metrics,
		settings: cache,
	}, nil
}

// Invalidate drops cached state of the given documents.
func (d *Driver) Invalidate(ids ...source.FileID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[source.FileID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for _, key := range d.settings.Keys() {
		if drop[key.id] {
			d.settings.Remove(key)
		}
	}
}

// Settings returns the merged settings of a project: the build-time marker
// and the project's intermediate output path, then every additional
// document named like the settings file, which may override the latter.
func (d *Driver) Settings(snap *graph.Snapshot, id graph.ProjectID) map[string]string {
	out := map[string]string{project.BuildTimeKey: "True"}
	if p, ok := snap.Project(id); ok && p.IntermediateOutputPath != "" {
		out[project.IntermediateOutputPathKey] = p.IntermediateOutputPath
	}
	for _, doc := range snap.AdditionalDocuments(id) {
		if filepath.Base(doc.NativePath()) != project.SettingsFileName {
			continue
		}
		key := docKey{id: doc.ID, version: doc.Version}
		parsed, ok := d.settings.Get(key)
		if !ok {
			parsed = project.ParseSettingsString(doc.Text.String())
			d.settings.Add(key, parsed)
		}
		for k, v := range parsed {
			out[k] = v
		}
	}
	return out
}

// Documents converts project documents to the analyzer view.
func Documents(nodes []*graph.DocumentNode) []plugin.Document {
	out := make([]plugin.Document, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, plugin.Document{ID: n.ID, Path: n.NativePath(), Text: n.Text})
	}
	return out
}

// Run analyzes the project and returns its sorted diagnostics.
func (d *Driver) Run(ctx context.Context, snap *graph.Snapshot, id graph.ProjectID) (*diag.Bag, error) {
	proj, ok := snap.Project(id)
	if !ok {
		return nil, fault.Newf(fault.KindInternal, diag.AnalysisFailed, "project %s is not loaded", id)
	}
	overrides, err := diag.ParseOverrides(proj.Options.Diagnostics)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "project diagnostic options")
	}

	ctx, span := trace.Start(ctx, trace.ScopePass, "analyze")
	span.Set("version", strconv.FormatUint(snap.Version(), 10))
	started := time.Now()
	defer func() {
		d.metrics.AnalysisPass(time.Since(started).Seconds())
		span.End("")
	}()

	symbols := append(append([]string(nil), proj.Options.Symbols...), d.symbols...)
	base := plugin.Pass{
		ProjectName:     proj.Name,
		ProjectPath:     source.NativePath(proj.Path),
		Language:        proj.Language,
		Documents:       Documents(snap.Documents(id)),
		AdditionalFiles: Documents(snap.AdditionalDocuments(id)),
		Settings:        d.Settings(snap, id),
		Symbols:         symbols,
	}

	results := make([]*diag.Bag, len(d.sel.Analyzers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(d.jobs, len(d.sel.Analyzers))))
	for i, a := range d.sel.Analyzers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bag, err := d.runOne(gctx, a, base)
			if err != nil {
				return err
			}
			results[i] = bag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fault.Canceled(ctxErr)
		}
		if _, ok := fault.As(err); ok {
			return nil, err
		}
		return nil, fault.Wrap(err, fault.KindInternal, diag.AnalysisFailed, "analysis failed")
	}

	out := diag.NewBag(0)
	for _, bag := range results {
		if bag == nil {
			continue
		}
		for _, item := range bag.Items() {
			sev, keep := overrides.Resolve(item.RuleID, d.sel.DefaultSeverity(item.RuleID))
			if !keep {
				continue
			}
			doc, ok := snap.Document(item.Document)
			if !ok || doc.Project != id || !item.Primary.Valid(doc.Text.Len()) {
				d.log.Warn("dropping diagnostic outside project documents",
					zap.String("rule", item.RuleID), zap.Stringer("span", item.Primary))
				continue
			}
			item.Severity = sev
			start, end := doc.Text.Resolve(item.Primary)
			item.Location = diag.Location{Path: doc.NativePath(), Start: start, End: end}
			out.Add(item)
		}
	}
	out.Dedup()
	out.Sort()
	d.log.Debug("analysis done", zap.String("project", proj.Name), zap.Int("diagnostics", out.Len()))
	return out, nil
}

// runOne runs one analyzer on its own bag. Rules the analyzer did not
// declare are dropped.
func (d *Driver) runOne(ctx context.Context, a plugin.Analyzer, base plugin.Pass) (bag *diag.Bag, err error) {
	declared := make(map[string]bool)
	for _, r := range a.Rules() {
		declared[r.ID] = true
	}
	bag = diag.NewBag(0)
	var (
		mu         sync.Mutex
		undeclared int
	)
	pass := base
	pass.Report = diag.ReporterFunc(func(rule string, sp source.Span, msg string) {
		mu.Lock()
		defer mu.Unlock()
		if !declared[rule] {
			undeclared++
			return
		}
		bag.Add(diag.Diagnostic{RuleID: rule, Severity: diag.SevWarning, Message: msg, Document: sp.File, Primary: sp})
	})

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("analyzer panicked", zap.String("analyzer", a.ID()), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fault.Newf(fault.KindInternal, diag.AnalysisFailed, "analyzer %s panicked: %v", a.ID(), r)
		}
	}()
	if err := a.Analyze(ctx, &pass); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fault.Wrap(err, fault.KindInternal, diag.AnalysisFailed, fmt.Sprintf("analyzer %s failed", a.ID()))
	}
	if undeclared > 0 {
		d.log.Debug("dropped undeclared rules", zap.String("analyzer", a.ID()), zap.Int("count", undeclared))
	}
	return bag, nil
}
