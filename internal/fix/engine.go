package fix

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/graph"
	"autofix/internal/observ"
	"autofix/internal/plugin"
	"autofix/internal/registry"
	"autofix/internal/source"
	"autofix/internal/trace"
)

// DefaultMaxPasses bounds the loop when Options.MaxPasses is zero.
const DefaultMaxPasses = 10000

// Analysis is what the engine needs from the analysis driver.
type Analysis interface {
	Run(ctx context.Context, snap *graph.Snapshot, id graph.ProjectID) (*diag.Bag, error)
	Settings(snap *graph.Snapshot, id graph.ProjectID) map[string]string
	Invalidate(ids ...source.FileID)
}

type Options struct {
	MaxPasses int
	Progress  ProgressSink
	// Refresh runs after every applied fix, before the next analysis, so
	// the caller can reload projects that changed on disk.
	Refresh func(ctx context.Context) error
	Logger  *zap.Logger
	Metrics *observ.Metrics
}

// Result of one engine run. Applied keeps the counts of fixes committed
// before a failure.
type Result struct {
	State   State
	Applied map[string]int
	Passes  int
	Err     error
}

// Total returns the number of applied fixes over all rules.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Applied {
		n += c
	}
	return n
}

// Engine repeatedly analyzes a project, fixes the first fixable
// diagnostic (or every diagnostic of its rule at once when a batch
// provider exists) and re-analyzes until nothing fixable is left.
type Engine struct {
	ws        *graph.Workspace
	sel       *registry.Selection
	analysis  Analysis
	maxPasses int
	progress  ProgressSink
	refresh   func(ctx context.Context) error
	log       *zap.Logger
	metrics   *observ.Metrics
}

func New(ws *graph.Workspace, sel *registry.Selection, analysis Analysis, opts Options) *Engine {
	e := &Engine{
		ws:        ws,
		sel:       sel,
		analysis:  analysis,
		maxPasses: opts.MaxPasses,
		progress:  opts.Progress,
		refresh:   opts.Refresh,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
	if e.maxPasses <= 0 {
		e.maxPasses = DefaultMaxPasses
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// step carries what one pass works on.
type step struct {
	snap     *graph.Snapshot
	project  *graph.ProjectNode
	bag      *diag.Bag
	settings map[string]string
}

// Run drives the loop for project id to a terminal state.
func (e *Engine) Run(ctx context.Context, id graph.ProjectID) *Result {
	res := &Result{Applied: make(map[string]int)}
	ctx, span := trace.Start(ctx, trace.ScopePhase, "converge")
	defer func() { span.End(res.State.String()) }()

	for {
		if err := ctx.Err(); err != nil {
			return e.fail(res, fault.Canceled(err))
		}
		if res.Passes >= e.maxPasses {
			return e.fail(res, fault.Newf(fault.KindInternal, diag.AnalysisFailed,
				"no convergence after %d passes", res.Passes))
		}
		res.Passes++

		started := time.Now()
		e.emit(Event{State: Analyzing, Pass: res.Passes})
		st, err := e.analyze(ctx, id)
		if err != nil {
			return e.fail(res, err)
		}

		target, remaining, ok := e.pick(st.bag)
		e.emit(Event{State: Selecting, Pass: res.Passes, Remaining: remaining})
		if !ok {
			res.State = Converged
			e.emit(Event{State: Converged, Pass: res.Passes, Count: res.Total(), Elapsed: time.Since(started)})
			e.log.Debug("converged", zap.Int("passes", res.Passes), zap.Int("applied", res.Total()))
			return res
		}

		touched, count, err := e.apply(ctx, st, target, res.Passes)
		if err != nil {
			return e.fail(res, err)
		}
		res.Applied[target.RuleID] += count

		e.emit(Event{State: Reloading, Pass: res.Passes, Rule: target.RuleID, Count: count, Elapsed: time.Since(started)})
		e.analysis.Invalidate(touched...)
		if e.refresh != nil {
			if err := e.refresh(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return e.fail(res, fault.Canceled(ctxErr))
				}
				return e.fail(res, err)
			}
		}
	}
}

func (e *Engine) analyze(ctx context.Context, id graph.ProjectID) (*step, error) {
	snap := e.ws.Snapshot()
	proj, ok := snap.Project(id)
	if !ok {
		return nil, fault.Newf(fault.KindInternal, diag.AnalysisFailed, "project %s is not loaded", id)
	}
	bag, err := e.analysis.Run(ctx, snap, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fault.Canceled(ctxErr)
		}
		if _, ok := fault.As(err); ok {
			return nil, err
		}
		return nil, fault.Wrap(err, fault.KindInternal, diag.AnalysisFailed, "analysis failed")
	}
	return &step{snap: snap, project: proj, bag: bag, settings: e.analysis.Settings(snap, id)}, nil
}

// pick returns the first requested, fixable diagnostic by location then
// rule id, and how many fixable diagnostics the bag holds.
func (e *Engine) pick(bag *diag.Bag) (diag.Diagnostic, int, bool) {
	bag.Sort()
	var (
		first diag.Diagnostic
		n     int
	)
	for _, d := range bag.Items() {
		if !e.sel.Requested(d.RuleID) || len(e.sel.Providers(d.RuleID)) == 0 {
			continue
		}
		if n == 0 {
			first = d
		}
		n++
	}
	return first, n, n > 0
}

// apply fixes target, through the batch path when its rule has a batch
// provider that produces a change, else through the single path.
func (e *Engine) apply(ctx context.Context, st *step, target diag.Diagnostic, pass int) (touched []source.FileID, count int, err error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "apply:"+target.RuleID)
	defer func() {
		span.Set("count", strconv.Itoa(count)).Set("documents", strconv.Itoa(len(touched)))
		if err != nil {
			span.End("failed")
			return
		}
		span.End("")
	}()

	if bp, ok := e.sel.BatchProvider(target.RuleID); ok {
		e.emit(Event{State: ApplyingBatch, Pass: pass, Rule: target.RuleID})
		touched, count, err = e.applyBatch(ctx, st, bp, target.RuleID)
		if err != nil || len(touched) > 0 {
			return touched, count, err
		}
		e.log.Debug("batch declined, falling back to single fix",
			zap.String("rule", target.RuleID), zap.String("provider", bp.Name()))
	}
	e.emit(Event{State: ApplyingSingle, Pass: pass, Rule: target.RuleID, Path: target.Location.Path})
	touched, err = e.applySingle(ctx, st, target)
	if err != nil {
		return nil, 0, err
	}
	return touched, 1, nil
}

func (e *Engine) applyBatch(ctx context.Context, st *step, bp plugin.BatchFixProvider, rule string) ([]source.FileID, int, error) {
	items := st.bag.ByRule(rule)
	docs := make(map[source.FileID]plugin.Document)
	for _, d := range items {
		if _, seen := docs[d.Document]; seen {
			continue
		}
		if node, ok := st.snap.Document(d.Document); ok {
			docs[d.Document] = plugin.Document{ID: node.ID, Path: node.NativePath(), Text: node.Text}
		}
	}
	first := items[0]

	rem, err := bp.RemediateAll(ctx, &plugin.BatchContext{
		Rule:        rule,
		Diagnostics: items,
		Documents:   docs,
		Settings:    st.settings,
	})
	if err != nil {
		return nil, 0, e.providerFailed(ctx, err, bp, first)
	}
	if rem.Empty() {
		return nil, 0, nil
	}
	changes, touched, err := render(st.snap, st.project.ID, rem)
	if err != nil {
		return nil, 0, notApplicable(err, bp, first)
	}
	if len(changes) == 0 {
		return nil, 0, nil
	}
	if err := e.commit(ctx, rule, "batch", bp, changes); err != nil {
		return nil, 0, err
	}
	n := resolved(items, rem.Edits, touched)
	e.metrics.FixApplied(rule, "batch", n)
	e.log.Debug("batch fix applied", zap.String("rule", rule), zap.String("provider", bp.Name()),
		zap.Int("diagnostics", n), zap.Int("reported", len(items)), zap.Int("documents", len(touched)))
	return touched, n, nil
}

// applySingle offers target to every provider in registration order. A
// provider that returns nothing, or edits that change nothing, declines.
func (e *Engine) applySingle(ctx context.Context, st *step, target diag.Diagnostic) ([]source.FileID, error) {
	node, ok := st.snap.Document(target.Document)
	if !ok {
		return nil, fault.Newf(fault.KindInternal, diag.AnalysisFailed,
			"diagnostic %s refers to unknown document %d", target.RuleID, target.Document)
	}
	fc := &plugin.FixContext{
		Diagnostic: target,
		Document:   plugin.Document{ID: node.ID, Path: node.NativePath(), Text: node.Text},
		Settings:   st.settings,
	}
	for _, p := range e.sel.Providers(target.RuleID) {
		rem, err := p.Remediate(ctx, fc)
		if err != nil {
			return nil, e.providerFailed(ctx, err, p, target)
		}
		if rem.Empty() {
			e.log.Debug("provider declined", zap.String("rule", target.RuleID), zap.String("provider", p.Name()))
			continue
		}
		changes, touched, err := render(st.snap, st.project.ID, rem)
		if err != nil {
			return nil, notApplicable(err, p, target)
		}
		if len(changes) == 0 {
			e.log.Debug("provider returned a no-op remediation",
				zap.String("rule", target.RuleID), zap.String("provider", p.Name()))
			continue
		}
		if err := e.commit(ctx, target.RuleID, "single", p, changes); err != nil {
			return nil, err
		}
		e.metrics.FixApplied(target.RuleID, "single", 1)
		e.log.Debug("fix applied", zap.String("rule", target.RuleID), zap.String("provider", p.Name()),
			zap.Stringer("location", target.Location))
		return touched, nil
	}
	return nil, fault.Newf(fault.KindRemediation, diag.NoFixApplied,
		"no provider produced a fix for %s: %s", target.RuleID, target.Message).At(target.Location)
}

// commit publishes changes as one mutation. Cancellation observed here
// discards the whole remediation.
func (e *Engine) commit(ctx context.Context, rule, mode string, p plugin.FixProvider, changes []graph.Change) error {
	_, err := e.ws.Apply(ctx, graph.Mutation{
		Reason:  fmt.Sprintf("%s fix %s by %s", mode, rule, p.Name()),
		Changes: changes,
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fault.Canceled(ctxErr)
	}
	return fault.Wrap(err, fault.KindInternal, diag.FixNotApplicable,
		fmt.Sprintf("commit %s fix for %s", mode, rule))
}

func (e *Engine) providerFailed(ctx context.Context, err error, p plugin.FixProvider, d diag.Diagnostic) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fault.Canceled(errors.Join(ctxErr, err))
	}
	return fault.Wrap(err, fault.KindRemediation, diag.FixProviderFailed,
		fmt.Sprintf("fix provider %s failed on %s", p.Name(), d.RuleID)).At(d.Location)
}

func notApplicable(err error, p plugin.FixProvider, d diag.Diagnostic) error {
	return fault.Wrap(err, fault.KindRemediation, diag.FixNotApplicable,
		fmt.Sprintf("remediation of %s by %s cannot be applied", d.RuleID, p.Name())).At(d.Location)
}

func (e *Engine) fail(res *Result, err error) *Result {
	res.State = Failed
	res.Err = err
	e.emit(Event{State: Failed, Pass: res.Passes, Count: res.Total(), Err: err})
	e.log.Debug("fix session failed", zap.Int("passes", res.Passes), zap.Error(err))
	return res
}

func (e *Engine) emit(evt Event) {
	if e.progress != nil {
		e.progress.OnEvent(evt)
	}
}
