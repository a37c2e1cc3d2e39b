package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"

	"autofix/internal/project"
	"autofix/internal/source"
)

// ErrUnsupportedChange is returned for change kinds the cache cannot
// persist. Callers treat it as fatal.
var ErrUnsupportedChange = errors.New("graph: unsupported change")

type ChangeKind uint8

const (
	AddDocument ChangeKind = iota + 1
	AddAdditionalDocument
	ChangeDocument
	RemoveDocument
	ChangeCompilationOptions
	RemoveProject
	RemoveProjectReference
)

// Change is one element of a Mutation. Which fields matter depends on
// Kind:
//
//	AddDocument, AddAdditionalDocument  Project, Path, Text (nil = read from disk)
//	ChangeDocument                      Document, Text
//	RemoveDocument                      Document
//	ChangeCompilationOptions            Project, Options
type Change struct {
	Kind     ChangeKind
	Project  ProjectID
	Document source.FileID
	Path     string
	Text     []byte
	Options  *project.CompilationOptions
}

// Mutation is applied all-or-nothing.
type Mutation struct {
	Reason  string
	Changes []Change
}

// Apply stages every change on a copy of the current snapshot, writes the
// affected documents through to disk and only then publishes the new
// snapshot. A failed write rolls back the files already written.
func (w *Workspace) Apply(ctx context.Context, m Mutation) (*Snapshot, error) {
	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := w.snap.Load()
	if len(m.Changes) == 0 {
		return base, nil
	}
	next := base.clone()
	var writes []*fileWrite
	for i := range m.Changes {
		fw, err := stage(next, &m.Changes[i])
		if err != nil {
			return nil, err
		}
		if fw != nil {
			writes = append(writes, fw)
		}
	}

	// последняя проверка перед записью на диск
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := persist(writes); err != nil {
		w.log.Warn("mutation rolled back", zap.String("reason", m.Reason), zap.Error(err))
		return nil, err
	}

	next.version = base.version + 1
	w.snap.Store(next)
	w.log.Debug("mutation applied",
		zap.String("reason", m.Reason),
		zap.Int("changes", len(m.Changes)),
		zap.Int("files", len(writes)),
		zap.Uint64("version", next.version))
	return next, nil
}

func stage(next *Snapshot, c *Change) (*fileWrite, error) {
	switch c.Kind {
	case AddDocument, AddAdditionalDocument:
		return stageAdd(next, c)
	case ChangeDocument:
		doc, ok := next.documents[c.Document]
		if !ok {
			return nil, fmt.Errorf("change document: unknown document %d", c.Document)
		}
		cp := *doc
		cp.Text = source.NewText(slices.Clone(c.Text))
		cp.Version++
		next.documents[cp.ID] = &cp
		return &fileWrite{path: cp.NativePath(), data: cp.Text.Bytes()}, nil
	case RemoveDocument:
		doc, ok := next.documents[c.Document]
		if !ok {
			return nil, fmt.Errorf("remove document: unknown document %d", c.Document)
		}
		p := next.projects[doc.Project].clone()
		p.Documents = slices.DeleteFunc(p.Documents, func(id source.FileID) bool { return id == doc.ID })
		p.AdditionalDocuments = slices.DeleteFunc(p.AdditionalDocuments, func(id source.FileID) bool { return id == doc.ID })
		next.projects[p.ID] = p
		delete(next.documents, doc.ID)
		return &fileWrite{path: doc.NativePath(), remove: true}, nil
	case ChangeCompilationOptions:
		if c.Options == nil {
			return nil, errors.New("change compilation options: no options")
		}
		p, ok := next.projects[c.Project]
		if !ok {
			return nil, fmt.Errorf("change compilation options: unknown project %s", c.Project)
		}
		cp := p.clone()
		cp.Options = c.Options.Clone()
		next.projects[cp.ID] = cp
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedChange, c.Kind)
}

func stageAdd(next *Snapshot, c *Change) (*fileWrite, error) {
	p, ok := next.projects[c.Project]
	if !ok {
		return nil, fmt.Errorf("add document: unknown project %s", c.Project)
	}
	canon, err := source.CanonicalPath(c.Path)
	if err != nil {
		return nil, fmt.Errorf("add document: %w", err)
	}
	if _, dup := next.FindDocument(p.ID, canon); dup {
		return nil, fmt.Errorf("add document: %s already belongs to %s", canon, p.Name)
	}
	var (
		content = c.Text
		fw      *fileWrite
	)
	if content == nil {
		content, err = os.ReadFile(source.NativePath(canon))
		if err != nil {
			return nil, fmt.Errorf("add document: %w", err)
		}
	} else {
		content = slices.Clone(content)
		fw = &fileWrite{path: source.NativePath(canon), data: content}
	}
	additional := c.Kind == AddAdditionalDocument
	doc := &DocumentNode{
		ID:         next.allocDoc(),
		Path:       canon,
		Project:    p.ID,
		Additional: additional,
		Text:       source.NewText(content),
		Version:    1,
	}
	cp := p.clone()
	if additional {
		cp.AdditionalDocuments = append(cp.AdditionalDocuments, doc.ID)
	} else {
		cp.Documents = append(cp.Documents, doc.ID)
	}
	next.projects[cp.ID] = cp
	next.documents[doc.ID] = doc
	return fw, nil
}

func (k ChangeKind) String() string {
	switch k {
	case AddDocument:
		return "AddDocument"
	case AddAdditionalDocument:
		return "AddAdditionalDocument"
	case ChangeDocument:
		return "ChangeDocument"
	case RemoveDocument:
		return "RemoveDocument"
	case ChangeCompilationOptions:
		return "ChangeCompilationOptions"
	case RemoveProject:
		return "RemoveProject"
	case RemoveProjectReference:
		return "RemoveProjectReference"
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(k))
}
