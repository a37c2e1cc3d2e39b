// Package script loads analyzer and fix provider modules written in Risor.
// A module is a directory with a module.toml manifest naming the scripts.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the file a module directory must contain.
const ManifestName = "module.toml"

type Manifest struct {
	Name        string         `toml:"name"`
	HostVersion int            `toml:"host_version"`
	Analyzers   []AnalyzerDecl `toml:"analyzer"`
	Fixes       []FixDecl      `toml:"fix"`
}

type RuleDecl struct {
	ID       string `toml:"id"`
	Title    string `toml:"title"`
	Severity string `toml:"severity"`
}

type AnalyzerDecl struct {
	ID     string     `toml:"id"`
	Script string     `toml:"script"`
	Rules  []RuleDecl `toml:"rules"`
}

type FixDecl struct {
	Name      string   `toml:"name"`
	Rules     []string `toml:"rules"`
	Languages []string `toml:"languages"`
	Batch     bool     `toml:"batch"`
	Script    string   `toml:"script"`
}

// ManifestPath accepts a manifest file or a module directory.
func ManifestPath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, ManifestName)
	}
	return path
}

// LoadManifest decodes a module manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		m.Name = filepath.Base(filepath.Dir(path))
	}
	if m.HostVersion == 0 {
		m.HostVersion = 1
	}
	return &m, nil
}
