// Package driver runs one fix invocation: it validates the options, loads
// analyzer modules, checks that every requested rule can be analyzed and
// fixed, loads the project graph and hands it to the convergence engine.
// Check stops after the first analysis.
package driver

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"autofix/internal/analysis"
	"autofix/internal/config"
	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/fix"
	"autofix/internal/graph"
	"autofix/internal/logging"
	"autofix/internal/observ"
	"autofix/internal/registry"
	"autofix/internal/session"
	"autofix/internal/source"
	"autofix/internal/trace"
)

type Options struct {
	Logger   *zap.Logger
	Metrics  *observ.Metrics
	Progress fix.ProgressSink
	Timer    *observ.Timer
}

// Outcome of an invocation. It is returned together with the error on
// failure so callers still see the failed modules and the fixes applied
// before the failure.
type Outcome struct {
	State         fix.State
	Applied       map[string]int
	FailedModules []registry.FailedModule
	Passes        int
	Elapsed       time.Duration
}

// Total returns the number of applied fixes over all rules.
func (o *Outcome) Total() int {
	n := 0
	for _, c := range o.Applied {
		n += c
	}
	return n
}

// Run executes one invocation inside scope.
func Run(ctx context.Context, scope *session.Scope, catalog *registry.Catalog, cfg *config.Config, opts Options) (*Outcome, error) {
	started := time.Now()
	log := logging.OrNop(opts.Logger)
	out := &Outcome{Applied: make(map[string]int)}
	defer func() { out.Elapsed = time.Since(started) }()

	ctx, span := trace.Start(ctx, trace.ScopeSession, "fix")
	defer span.End("")

	st, err := open(ctx, scope, catalog, cfg, opts, out)
	if err != nil || st == nil {
		return out, err
	}
	defer st.end(ctx, log)

	drv, err := analysis.New(st.sel, analysis.Options{Jobs: cfg.Jobs, Logger: log, Metrics: opts.Metrics})
	if err != nil {
		out.State = fix.Failed
		return out, err
	}
	engine := fix.New(st.inv.Workspace(), st.sel, drv, fix.Options{
		MaxPasses: cfg.MaxPasses,
		Progress:  opts.Progress,
		Logger:    log,
		Metrics:   opts.Metrics,
		Refresh: func(ctx context.Context) error {
			reloaded, err := st.inv.Refresh(ctx, cfg.ProjectPath)
			if err != nil || !reloaded {
				return err
			}
			return prepare(ctx, st.inv.Workspace(), st.proj.ID, cfg)
		},
	})

	var res *fix.Result
	_ = phase(ctx, opts.Timer, "converge", func(ctx context.Context) error {
		res = engine.Run(ctx, st.proj.ID)
		return res.Err
	})
	out.State = res.State
	out.Passes = res.Passes
	for rule, n := range res.Applied {
		out.Applied[rule] = n
	}
	log.Info("fix session finished",
		zap.Stringer("state", res.State),
		zap.Int("passes", res.Passes),
		zap.Int("applied", out.Total()))
	return out, res.Err
}

// Check runs one analysis pass with the same selection and project setup
// as Run and returns the requested diagnostics. Nothing is fixed; the
// settings and options mutations are in memory only until End clears them.
func Check(ctx context.Context, scope *session.Scope, catalog *registry.Catalog, cfg *config.Config, opts Options) (*diag.Bag, *Outcome, error) {
	started := time.Now()
	log := logging.OrNop(opts.Logger)
	out := &Outcome{Applied: make(map[string]int)}
	defer func() { out.Elapsed = time.Since(started) }()

	ctx, span := trace.Start(ctx, trace.ScopeSession, "check")
	defer span.End("")

	st, err := open(ctx, scope, catalog, cfg, opts, out)
	if err != nil {
		return nil, out, err
	}
	if st == nil {
		return diag.NewBag(0), out, nil
	}
	defer st.end(ctx, log)

	drv, err := analysis.New(st.sel, analysis.Options{Jobs: cfg.Jobs, Logger: log, Metrics: opts.Metrics})
	if err != nil {
		out.State = fix.Failed
		return nil, out, err
	}
	var bag *diag.Bag
	err = phase(ctx, opts.Timer, "analyze", func(ctx context.Context) error {
		var err error
		bag, err = drv.Run(ctx, st.inv.Workspace().Snapshot(), st.proj.ID)
		return err
	})
	if err != nil {
		out.State = fix.Failed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, out, fault.Canceled(ctxErr)
		}
		return nil, out, err
	}
	bag.Filter(func(d diag.Diagnostic) bool { return st.sel.Requested(d.RuleID) })
	bag.Sort()
	out.State = fix.Converged
	out.Passes = 1
	return bag, out, nil
}

// opened is an invocation past the preflight and load phases.
type opened struct {
	sel  *registry.Selection
	inv  *session.Invocation
	proj *graph.ProjectNode
}

func (o *opened) end(ctx context.Context, log *zap.Logger) {
	if err := o.inv.End(context.WithoutCancel(ctx)); err != nil {
		log.Warn("ending invocation", zap.Error(err))
	}
}

// open validates cfg, selects the rules and loads the project. It returns
// nil without error when no rules are requested. On error the invocation,
// if begun, is already ended.
func open(ctx context.Context, scope *session.Scope, catalog *registry.Catalog, cfg *config.Config, opts Options, out *Outcome) (*opened, error) {
	log := logging.OrNop(opts.Logger)
	if err := cfg.Validate(); err != nil {
		out.State = fix.Failed
		return nil, err
	}
	rules := config.SplitList(cfg.Rules...)
	if len(rules) == 0 {
		log.Info("no rules requested, nothing to do")
		out.State = fix.Converged
		return nil, nil
	}

	var sel *registry.Selection
	err := phase(ctx, opts.Timer, "preflight", func(ctx context.Context) error {
		out.FailedModules = catalog.LoadModules(ctx, cfg.Modules, cfg.ExcludeModules)
		for _, fm := range out.FailedModules {
			log.Warn("analyzer module excluded", zap.String("module", fm.Path), zap.Error(fm.Err))
		}
		var err error
		sel, err = catalog.Select(rules, cfg.Language)
		return err
	})
	if err != nil {
		out.State = fix.Failed
		return nil, err
	}

	inv, err := scope.Begin(ctx)
	if err != nil {
		out.State = fix.Failed
		if errors.Is(err, session.ErrBusy) || errors.Is(err, session.ErrClosed) {
			return nil, fault.Wrap(err, fault.KindInternal, diag.UnknownCode, "session unavailable")
		}
		return nil, err
	}
	st := &opened{sel: sel, inv: inv}

	err = phase(ctx, opts.Timer, "load", func(ctx context.Context) error {
		_, p, err := inv.Load(ctx, cfg.ProjectPath)
		if err != nil {
			return err
		}
		if !strings.EqualFold(p.Language, cfg.Language) {
			log.Warn("project language differs from the requested one",
				zap.String("project", p.Language), zap.String("requested", cfg.Language))
		}
		st.proj = p
		return prepare(ctx, inv.Workspace(), p.ID, cfg)
	})
	if err != nil {
		out.State = fix.Failed
		st.end(ctx, log)
		return nil, err
	}
	return st, nil
}

// prepare adds the settings and additional files the project does not
// list yet and merges the invocation's severity overrides and symbols into
// its options, as one mutation.
func prepare(ctx context.Context, ws *graph.Workspace, id graph.ProjectID, cfg *config.Config) error {
	snap := ws.Snapshot()
	p, ok := snap.Project(id)
	if !ok {
		return fault.Newf(fault.KindInternal, diag.AnalysisFailed, "project %s is not loaded", id)
	}

	var changes []graph.Change
	extra := slices.Clone(cfg.AdditionalFiles)
	if cfg.SettingsFile != "" {
		extra = append(extra, cfg.SettingsFile)
	}
	added := make(map[string]bool)
	for _, f := range extra {
		key, err := source.CanonicalPath(f)
		if err != nil {
			return fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "additional file "+f)
		}
		if added[key] {
			continue
		}
		added[key] = true
		if _, present := snap.FindDocument(id, f); present {
			continue
		}
		changes = append(changes, graph.Change{Kind: graph.AddAdditionalDocument, Project: id, Path: f})
	}

	overrides, err := cfg.Overrides(p.Options.Diagnostics)
	if err != nil {
		return err
	}
	opts := p.Options.Clone()
	opts.Diagnostics = overrides.Strings()
	opts.Symbols = config.SplitList(append(slices.Clone(p.Options.Symbols), cfg.Symbols...)...)
	changes = append(changes, graph.Change{Kind: graph.ChangeCompilationOptions, Project: id, Options: &opts})

	if _, err := ws.Apply(ctx, graph.Mutation{Reason: "prepare invocation", Changes: changes}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fault.Canceled(ctxErr)
		}
		return fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "prepare project")
	}
	return nil
}

// phase runs fn as a timed, traced phase.
func phase(ctx context.Context, timer *observ.Timer, name string, fn func(context.Context) error) error {
	ctx, span := trace.Start(ctx, trace.ScopePhase, name)
	err := timer.Track(name, func() error { return fn(ctx) })
	note := ""
	if err != nil {
		note = "failed"
	}
	span.End(note)
	return err
}
