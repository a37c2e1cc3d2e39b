package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ProjectFileExt is the extension of project files.
const ProjectFileExt = ".fixproj"

// ErrAmbiguousProject is returned when a directory holds several project files.
var ErrAmbiguousProject = errors.New("several project files found")

// FindProjectFile walks up from startDir to locate the nearest directory
// with exactly one *.fixproj file.
func FindProjectFile(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ProjectFileExt))
		if err != nil {
			return "", false, fmt.Errorf("failed to scan %q: %w", dir, err)
		}
		switch len(matches) {
		case 0:
		case 1:
			return matches[0], true, nil
		default:
			sort.Strings(matches)
			return "", false, fmt.Errorf("%s: %w: %v", dir, ErrAmbiguousProject, matches)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// IsFile reports whether path names an existing regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
