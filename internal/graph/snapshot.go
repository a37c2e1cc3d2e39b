// Package graph is the in-memory project graph cache. Readers work on an
// immutable *Snapshot; every load or mutation builds the next snapshot
// copy-on-write and swaps it in atomically.
package graph

import (
	"slices"

	"autofix/internal/project"
	"autofix/internal/source"
)

type ProjectID string

type ProjectNode struct {
	ID                     ProjectID
	Path                   string // canonical
	Name                   string
	Language               string
	Options                project.CompilationOptions
	OutputPath             string
	IntermediateOutputPath string
	Documents              []source.FileID
	AdditionalDocuments    []source.FileID
	References             []ProjectID
}

func (p *ProjectNode) clone() *ProjectNode {
	cp := *p
	cp.Options = p.Options.Clone()
	cp.Documents = slices.Clone(p.Documents)
	cp.AdditionalDocuments = slices.Clone(p.AdditionalDocuments)
	cp.References = slices.Clone(p.References)
	return &cp
}

type DocumentNode struct {
	ID         source.FileID
	Path       string // canonical
	Project    ProjectID
	Additional bool
	Text       *source.Text
	Version    uint64
}

// NativePath is the path to use for filesystem calls.
func (d *DocumentNode) NativePath() string {
	return source.NativePath(d.Path)
}

// Snapshot is never modified after it has been published.
type Snapshot struct {
	version   uint64
	projects  map[ProjectID]*ProjectNode
	byPath    map[string]ProjectID
	documents map[source.FileID]*DocumentNode
	nextDoc   source.FileID
}

func emptySnapshot(version uint64) *Snapshot {
	return &Snapshot{
		version:   version,
		projects:  make(map[ProjectID]*ProjectNode),
		byPath:    make(map[string]ProjectID),
		documents: make(map[source.FileID]*DocumentNode),
		nextDoc:   1,
	}
}

// clone copies the maps; nodes are shared until replaced.
func (s *Snapshot) clone() *Snapshot {
	cp := &Snapshot{
		version:   s.version,
		projects:  make(map[ProjectID]*ProjectNode, len(s.projects)),
		byPath:    make(map[string]ProjectID, len(s.byPath)),
		documents: make(map[source.FileID]*DocumentNode, len(s.documents)),
		nextDoc:   s.nextDoc,
	}
	for k, v := range s.projects {
		cp.projects[k] = v
	}
	for k, v := range s.byPath {
		cp.byPath[k] = v
	}
	for k, v := range s.documents {
		cp.documents[k] = v
	}
	return cp
}

func (s *Snapshot) allocDoc() source.FileID {
	id := s.nextDoc
	s.nextDoc++
	return id
}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Project(id ProjectID) (*ProjectNode, bool) {
	p, ok := s.projects[id]
	return p, ok
}

func (s *Snapshot) Document(id source.FileID) (*DocumentNode, bool) {
	d, ok := s.documents[id]
	return d, ok
}

// FindProject looks a project up by file path.
func (s *Snapshot) FindProject(path string) (*ProjectNode, bool) {
	canon, err := source.CanonicalPath(path)
	if err != nil {
		return nil, false
	}
	id, ok := s.byPath[canon]
	if !ok {
		return nil, false
	}
	return s.Project(id)
}

// Projects returns every loaded project ordered by path.
func (s *Snapshot) Projects() []*ProjectNode {
	out := make([]*ProjectNode, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *ProjectNode) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out
}

// Documents returns the regular documents of a project in project order.
func (s *Snapshot) Documents(id ProjectID) []*DocumentNode {
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	return s.resolveDocs(p.Documents)
}

// AdditionalDocuments returns the additional documents of a project.
func (s *Snapshot) AdditionalDocuments(id ProjectID) []*DocumentNode {
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	return s.resolveDocs(p.AdditionalDocuments)
}

func (s *Snapshot) resolveDocs(ids []source.FileID) []*DocumentNode {
	out := make([]*DocumentNode, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// FindDocument looks a document of a project up by path, additional
// documents included.
func (s *Snapshot) FindDocument(id ProjectID, path string) (*DocumentNode, bool) {
	canon, err := source.CanonicalPath(path)
	if err != nil {
		return nil, false
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	for _, ids := range [][]source.FileID{p.Documents, p.AdditionalDocuments} {
		for _, docID := range ids {
			if d := s.documents[docID]; d != nil && source.SamePath(d.Path, canon) {
				return d, true
			}
		}
	}
	return nil, false
}

// Empty reports whether nothing is loaded.
func (s *Snapshot) Empty() bool {
	return len(s.projects) == 0 && len(s.documents) == 0
}

// dropProject removes a project and its documents from a staged snapshot.
func (s *Snapshot) dropProject(id ProjectID) {
	p, ok := s.projects[id]
	if !ok {
		return
	}
	for _, d := range p.Documents {
		delete(s.documents, d)
	}
	for _, d := range p.AdditionalDocuments {
		delete(s.documents, d)
	}
	delete(s.byPath, p.Path)
	delete(s.projects, id)
}
