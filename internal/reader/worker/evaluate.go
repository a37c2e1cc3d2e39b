package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"autofix/internal/project"
	"autofix/internal/source"
)

// evaluated is a parsed project file, valid while the file on disk keeps
// its size and modification time.
type evaluated struct {
	modTime time.Time
	size    int64
	digest  project.Digest
	file    *project.File
}

func (s *Server) evaluate(canon string) (*evaluated, error) {
	native := source.NativePath(canon)
	info, err := os.Stat(native)
	if err != nil {
		return nil, err
	}
	if ev, ok := s.cache.Get(canon); ok && ev.size == info.Size() && ev.modTime.Equal(info.ModTime()) {
		return ev, nil
	}
	content, err := os.ReadFile(native)
	if err != nil {
		return nil, err
	}
	file, err := project.ParseFile(native, s.props)
	if err != nil {
		return nil, err
	}
	s.evals++
	ev := &evaluated{modTime: info.ModTime(), size: info.Size(), digest: project.Sum(content), file: file}
	s.cache.Add(canon, ev)
	return ev, nil
}

// resolver is the state of one OpenProject request. Every project is
// resolved once; later occurrences are sent as stubs.
type resolver struct {
	s     *Server
	ctx   context.Context
	done  map[string]bool
	stack []string
}

func (s *Server) openProject(ctx context.Context, path string) (*project.Metadata, error) {
	r := &resolver{s: s, ctx: ctx, done: make(map[string]bool)}
	meta, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (r *resolver) onStack(canon string) bool {
	for _, p := range r.stack {
		if p == canon {
			return true
		}
	}
	return false
}

func (r *resolver) resolve(path string) (project.Metadata, error) {
	if err := r.ctx.Err(); err != nil {
		return project.Metadata{}, err
	}
	canon, err := source.CanonicalPath(path)
	if err != nil {
		return project.Metadata{}, err
	}
	native := source.NativePath(canon)
	if r.onStack(canon) {
		return project.Metadata{}, fmt.Errorf("project reference cycle: %s -> %s", strings.Join(r.stack, " -> "), canon)
	}
	if r.done[canon] {
		return project.Metadata{Schema: project.SchemaVersion, ID: project.StableID(canon), FilePath: native, Stub: true}, nil
	}

	ev, err := r.s.evaluate(canon)
	if err != nil {
		return project.Metadata{}, fmt.Errorf("evaluate %s: %w", native, err)
	}
	p := ev.file.Project
	dir := filepath.Dir(native)

	if len(ev.file.Codegen) > 0 {
		if r.s.noCodeGen() {
			r.s.log.Debug("codegen skipped", zap.String("project", native), zap.Int("steps", len(ev.file.Codegen)))
		} else {
			for _, step := range ev.file.Codegen {
				stepDir := dir
				if step.Dir != "" {
					stepDir = project.ResolveDir(native, step.Dir)
				}
				if err := r.s.codegen(r.ctx, stepDir, step.Command); err != nil {
					return project.Metadata{}, fmt.Errorf("codegen for %s: %w", native, err)
				}
			}
		}
	}

	skip := []string{p.OutputPath, p.IntermediateOutputPath}
	docs, err := project.Expand(dir, p.Documents, skip)
	if err != nil {
		return project.Metadata{}, err
	}
	additional, err := project.Expand(dir, p.AdditionalDocuments, skip)
	if err != nil {
		return project.Metadata{}, err
	}

	r.stack = append(r.stack, canon)
	refs := make([]project.Metadata, 0, len(p.References))
	refDigests := make([]project.Digest, 0, len(p.References))
	for _, ref := range p.References {
		m, err := r.resolve(project.ResolveDir(native, ref))
		if err != nil {
			return project.Metadata{}, err
		}
		refs = append(refs, m)
		if d, err := project.ParseDigest(m.Fingerprint); err == nil {
			refDigests = append(refDigests, d)
		}
	}
	r.stack = r.stack[:len(r.stack)-1]
	r.done[canon] = true

	return project.Metadata{
		Schema:                 project.SchemaVersion,
		ID:                     project.StableID(canon),
		Name:                   p.Name,
		Language:               p.Language,
		FilePath:               native,
		OutputPath:             project.ResolveDir(native, p.OutputPath),
		IntermediateOutputPath: project.ResolveDir(native, p.IntermediateOutputPath),
		Fingerprint:            project.Combine(ev.digest, refDigests...).String(),
		Options: project.CompilationOptions{
			OutputKind:  project.OutputKind(p.OutputKind),
			Platform:    project.Platform(p.Platform),
			Diagnostics: ev.file.Diagnostics,
			Symbols:     p.Symbols,
		},
		Documents:           documentInfos(dir, docs),
		AdditionalDocuments: documentInfos(dir, additional),
		References:          refs,
	}, nil
}

func documentInfos(root string, paths []string) []project.DocumentInfo {
	out := make([]project.DocumentInfo, 0, len(paths))
	for _, p := range paths {
		info := project.DocumentInfo{FilePath: p}
		if rel, err := filepath.Rel(root, filepath.Dir(p)); err == nil && rel != "." {
			info.Folders = splitFolders(rel)
		}
		out = append(out, info)
	}
	return out
}

func splitFolders(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}
