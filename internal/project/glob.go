package project

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Expand matches project-relative glob patterns ("src/**/*.txt") against
// the files below root. Directories in skip (relative, slash separated)
// and hidden directories are not descended into. Results are absolute and
// sorted; a literal pattern that names an existing file is kept even if it
// lives in a skipped directory.
func Expand(root string, patterns []string, skip []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		norm := strings.TrimPrefix(filepath.ToSlash(p), "./")
		if !strings.ContainsAny(norm, "*?[{") {
			abs := filepath.FromSlash(norm)
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(root, abs)
			}
			if IsFile(abs) {
				if _, dup := seen[abs]; !dup {
					seen[abs] = struct{}{}
					out = append(out, abs)
				}
			}
			continue
		}
		g, err := glob.Compile(norm, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}

	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		s = strings.Trim(filepath.ToSlash(filepath.Clean(s)), "/")
		if s != "" && s != "." {
			skipSet[s] = struct{}{}
		}
	}

	if len(globs) > 0 {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if rel == "." {
					return nil
				}
				if strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				if _, ok := skipSet[rel]; ok {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			for _, g := range globs {
				if g.Match(rel) {
					if _, dup := seen[path]; !dup {
						seen[path] = struct{}{}
						out = append(out, path)
					}
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", root, err)
		}
	}
	sort.Strings(out)
	return out, nil
}
