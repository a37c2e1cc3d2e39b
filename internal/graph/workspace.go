package graph

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/project"
	"autofix/internal/project/dag"
	"autofix/internal/source"
)

// ErrConcurrentMutation is returned when a load or mutation starts while
// another one is still being staged.
var ErrConcurrentMutation = errors.New("graph: concurrent mutation")

// Loader returns the evaluated metadata of a project file with its
// references resolved.
type Loader interface {
	OpenProject(ctx context.Context, path string) (*project.Metadata, error)
}

type Workspace struct {
	snap    atomic.Pointer[Snapshot]
	writing atomic.Bool
	log     *zap.Logger
}

type Option func(*Workspace)

func WithLogger(log *zap.Logger) Option {
	return func(w *Workspace) {
		if log != nil {
			w.log = log
		}
	}
}

func NewWorkspace(opts ...Option) *Workspace {
	w := &Workspace{log: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	w.snap.Store(emptySnapshot(0))
	return w
}

// Snapshot returns the current immutable snapshot.
func (w *Workspace) Snapshot() *Snapshot {
	return w.snap.Load()
}

func (w *Workspace) Project(id ProjectID) (*ProjectNode, bool) {
	return w.Snapshot().Project(id)
}

func (w *Workspace) Document(id source.FileID) (*DocumentNode, bool) {
	return w.Snapshot().Document(id)
}

func (w *Workspace) FindProject(path string) (*ProjectNode, bool) {
	return w.Snapshot().FindProject(path)
}

func (w *Workspace) acquire() error {
	if !w.writing.CompareAndSwap(false, true) {
		return ErrConcurrentMutation
	}
	return nil
}

func (w *Workspace) release() { w.writing.Store(false) }

// Cleanup drops every project and document.
func (w *Workspace) Cleanup() {
	old := w.snap.Load()
	w.snap.Store(emptySnapshot(old.version + 1))
	w.log.Debug("workspace cleaned", zap.Int("projects", len(old.projects)))
}

// Evict drops the project stored under path, if any, so that the next
// GetOrLoad evaluates it again. Projects referencing it are dropped too.
func (w *Workspace) Evict(path string) bool {
	canon, err := source.CanonicalPath(path)
	if err != nil {
		return false
	}
	if w.acquire() != nil {
		return false
	}
	defer w.release()

	base := w.snap.Load()
	id, ok := base.byPath[canon]
	if !ok {
		return false
	}
	next := base.clone()
	pending := []ProjectID{id}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, ok := next.projects[cur]; !ok {
			continue
		}
		next.dropProject(cur)
		for pid, p := range next.projects {
			for _, ref := range p.References {
				if ref == cur {
					pending = append(pending, pid)
					break
				}
			}
		}
	}
	next.version = base.version + 1
	w.snap.Store(next)
	w.log.Debug("project evicted", zap.String("path", canon))
	return true
}

// GetOrLoad returns the project stored under path, loading it and every
// project it references on a miss. A load either commits completely or
// leaves the cache untouched.
func (w *Workspace) GetOrLoad(ctx context.Context, loader Loader, path string) (*Snapshot, *ProjectNode, error) {
	canon, err := source.CanonicalPath(path)
	if err != nil {
		return nil, nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "invalid project path")
	}
	if snap := w.Snapshot(); snap != nil {
		if id, ok := snap.byPath[canon]; ok {
			return snap, snap.projects[id], nil
		}
	}
	if !project.IsFile(source.NativePath(canon)) {
		return nil, nil, fault.Newf(fault.KindConfiguration, diag.InvalidConfig, "project file %s not found", source.NativePath(canon))
	}
	if err := w.acquire(); err != nil {
		return nil, nil, err
	}
	defer w.release()

	base := w.snap.Load()
	l := &load{
		ctx:     ctx,
		loader:  loader,
		next:    base.clone(),
		base:    base,
		staged:  make(map[string]ProjectID),
		onStack: make(map[string]bool),
	}
	root, err := l.open(canon)
	if err != nil {
		return nil, nil, err
	}
	id, err := l.build(root, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := l.validate(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fault.Canceled(err)
	}

	l.next.version = base.version + 1
	w.snap.Store(l.next)
	w.log.Debug("project graph loaded",
		zap.String("project", canon),
		zap.Int("new_projects", len(l.staged)),
		zap.Uint64("version", l.next.version))
	return l.next, l.next.projects[id], nil
}

// load is one staged GetOrLoad call.
type load struct {
	ctx     context.Context
	loader  Loader
	base    *Snapshot
	next    *Snapshot
	staged  map[string]ProjectID
	onStack map[string]bool
	order   []string
}

func (l *load) open(canon string) (*project.Metadata, error) {
	meta, err := l.loader.OpenProject(l.ctx, source.NativePath(canon))
	if err != nil {
		if _, ok := fault.As(err); ok {
			return nil, err
		}
		return nil, fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "open project "+source.NativePath(canon))
	}
	if meta == nil {
		return nil, fault.Newf(fault.KindWorkerProcess, diag.WorkerFailed, "worker returned no metadata for %s", source.NativePath(canon))
	}
	if err := meta.Validate(); err != nil {
		return nil, fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "invalid project metadata")
	}
	if meta.Stub {
		return nil, fault.Newf(fault.KindWorkerProcess, diag.WorkerFailed, "worker returned a stub for %s", source.NativePath(canon))
	}
	return meta, nil
}

// build walks depth-first; every path is looked up before recursing.
func (l *load) build(meta *project.Metadata, chain []string) (ProjectID, error) {
	if err := l.ctx.Err(); err != nil {
		return "", fault.Canceled(err)
	}
	canon, err := source.CanonicalPath(meta.FilePath)
	if err != nil {
		return "", fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "invalid project path in metadata")
	}
	if id, ok := l.base.byPath[canon]; ok {
		return id, nil
	}
	if id, ok := l.staged[canon]; ok {
		return id, nil
	}
	chain = append(chain, canon)
	if l.onStack[canon] {
		return "", fault.Newf(fault.KindConfiguration, diag.InvalidConfig, "project reference cycle: %s", describeChain(chain))
	}
	if meta.Stub {
		// заглушка: проект ещё не загружен, спрашиваем воркер отдельно
		full, err := l.open(canon)
		if err != nil {
			return "", err
		}
		meta = full
	}

	l.onStack[canon] = true
	refs := make([]ProjectID, 0, len(meta.References))
	for i := range meta.References {
		rid, err := l.build(&meta.References[i], chain)
		if err != nil {
			return "", err
		}
		refs = append(refs, rid)
	}
	delete(l.onStack, canon)

	node := &ProjectNode{
		ID:                     ProjectID(meta.ID),
		Path:                   canon,
		Name:                   meta.Name,
		Language:               meta.Language,
		Options:                meta.Options.Clone(),
		OutputPath:             meta.OutputPath,
		IntermediateOutputPath: meta.IntermediateOutputPath,
		References:             refs,
	}
	if _, dup := l.next.projects[node.ID]; dup {
		return "", fault.Newf(fault.KindWorkerProcess, diag.WorkerFailed, "duplicate project id %s for %s", node.ID, canon)
	}
	if node.Documents, err = l.addDocuments(node.ID, meta.Documents, false); err != nil {
		return "", err
	}
	if node.AdditionalDocuments, err = l.addDocuments(node.ID, meta.AdditionalDocuments, true); err != nil {
		return "", err
	}
	l.next.projects[node.ID] = node
	l.next.byPath[canon] = node.ID
	l.staged[canon] = node.ID
	l.order = append(l.order, canon)
	return node.ID, nil
}

func (l *load) addDocuments(owner ProjectID, docs []project.DocumentInfo, additional bool) ([]source.FileID, error) {
	ids := make([]source.FileID, 0, len(docs))
	for _, info := range docs {
		canon, err := source.CanonicalPath(info.FilePath)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "invalid document path")
		}
		content, err := os.ReadFile(source.NativePath(canon))
		if err != nil {
			return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "read document "+info.FilePath)
		}
		id := l.next.allocDoc()
		l.next.documents[id] = &DocumentNode{
			ID:         id,
			Path:       canon,
			Project:    owner,
			Additional: additional,
			Text:       source.NewText(content),
			Version:    1,
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// validate runs the staged snapshot through the reference DAG before it
// is published.
func (l *load) validate() error {
	nodes := make([]dag.Node, 0, len(l.next.projects))
	for _, p := range l.next.projects {
		refs := make([]string, 0, len(p.References))
		for _, r := range p.References {
			ref, ok := l.next.projects[r]
			if !ok {
				return fault.Newf(fault.KindInternal, diag.AnalysisFailed, "project %s references unknown id %s", p.Path, r)
			}
			refs = append(refs, ref.Path)
		}
		nodes = append(nodes, dag.Node{Path: p.Path, Refs: refs})
	}
	idx := dag.BuildIndex(nodes)
	g, problems := dag.BuildGraph(idx, nodes)
	if len(problems) > 0 {
		return fault.Newf(fault.KindConfiguration, diag.InvalidConfig, "invalid project graph: %s", problems[0])
	}
	if topo := dag.Toposort(g); topo.Cyclic {
		return fault.Newf(fault.KindConfiguration, diag.InvalidConfig, "project reference cycle: %s", dag.DescribeCycle(idx, topo))
	}
	return nil
}

func describeChain(chain []string) string {
	return strings.Join(chain, " -> ")
}
