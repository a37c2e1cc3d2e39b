package project

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// File is the on-disk project file (*.fixproj).
type File struct {
	Project     ProjectSection    `toml:"project"`
	Diagnostics map[string]string `toml:"diagnostics"`
	Codegen     []CodegenStep     `toml:"codegen"`
}

type ProjectSection struct {
	Name                   string   `toml:"name"`
	Language               string   `toml:"language"`
	OutputKind             string   `toml:"output_kind"`
	Platform               string   `toml:"platform"`
	OutputPath             string   `toml:"output_path"`
	IntermediateOutputPath string   `toml:"intermediate_output_path"`
	Documents              []string `toml:"documents"`
	AdditionalDocuments    []string `toml:"additional_documents"`
	References             []string `toml:"references"`
	Symbols                []string `toml:"symbols"`
}

// CodegenStep is a source generator run during evaluation. The metadata
// worker skips these when NoCodeGen is set.
type CodegenStep struct {
	Command []string `toml:"command"`
	Dir     string   `toml:"dir"`
}

// Well-known global properties.
const (
	PropNoCodeGen     = "NoCodeGen"
	PropConfiguration = "Configuration"
	PropProjectDir    = "ProjectDir"
	PropProjectName   = "ProjectName"
)

var propRef = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_.]*)\)`)

// ExpandProperties replaces $(Name) references. Unknown properties expand
// to the empty string, as build tools do.
func ExpandProperties(s string, props map[string]string) string {
	if !strings.Contains(s, "$(") {
		return s
	}
	return propRef.ReplaceAllStringFunc(s, func(m string) string {
		name := propRef.FindStringSubmatch(m)[1]
		return props[name]
	})
}

// ParseFile decodes and normalizes a project file. props are the global
// properties of the workspace; ProjectDir and ProjectName are added.
func ParseFile(path string, props map[string]string) (*File, error) {
	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("project") {
		return nil, fmt.Errorf("%s: missing [project]", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	scope := make(map[string]string, len(props)+2)
	for k, v := range props {
		scope[k] = v
	}
	scope[PropProjectDir] = filepath.ToSlash(filepath.Dir(path))
	scope[PropProjectName] = base

	p := &f.Project
	expand := func(s string) string { return strings.TrimSpace(ExpandProperties(s, scope)) }
	expandAll := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = expand(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	p.Name = expand(p.Name)
	if p.Name == "" {
		p.Name = base
	}
	p.Language = strings.ToLower(expand(p.Language))
	if p.Language == "" {
		return nil, fmt.Errorf("%s: [project].language is required", path)
	}
	p.OutputKind = strings.ToLower(expand(p.OutputKind))
	if p.OutputKind == "" {
		p.OutputKind = string(OutputLibrary)
	}
	if !OutputKind(p.OutputKind).Valid() {
		return nil, fmt.Errorf("%s: unknown output_kind %q", path, p.OutputKind)
	}
	p.Platform = strings.ToLower(expand(p.Platform))
	if p.Platform == "" {
		p.Platform = string(PlatformAnyCPU)
	}
	if !Platform(p.Platform).Valid() {
		return nil, fmt.Errorf("%s: unknown platform %q", path, p.Platform)
	}
	p.OutputPath = expand(p.OutputPath)
	if p.OutputPath == "" {
		p.OutputPath = "bin"
	}
	p.IntermediateOutputPath = expand(p.IntermediateOutputPath)
	if p.IntermediateOutputPath == "" {
		p.IntermediateOutputPath = "obj"
	}
	p.Documents = expandAll(p.Documents)
	p.AdditionalDocuments = expandAll(p.AdditionalDocuments)
	p.References = expandAll(p.References)
	p.Symbols = expandAll(p.Symbols)
	for i := range f.Codegen {
		f.Codegen[i].Command = expandAll(f.Codegen[i].Command)
		f.Codegen[i].Dir = expand(f.Codegen[i].Dir)
		if len(f.Codegen[i].Command) == 0 {
			return nil, fmt.Errorf("%s: codegen step %d has no command", path, i+1)
		}
	}
	return &f, nil
}

// ResolveDir joins a project-relative path with the project directory.
func ResolveDir(projectPath, rel string) string {
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(filepath.Dir(projectPath), rel)
}
