package project

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is bumped whenever a field of Metadata changes meaning.
// Client and worker refuse payloads of another version.
const SchemaVersion uint16 = 1

type OutputKind string

const (
	OutputLibrary OutputKind = "library"
	OutputExe     OutputKind = "exe"
	OutputWinExe  OutputKind = "winexe"
	OutputModule  OutputKind = "module"
)

func (k OutputKind) Valid() bool {
	switch k {
	case OutputLibrary, OutputExe, OutputWinExe, OutputModule:
		return true
	}
	return false
}

type Platform string

const (
	PlatformAnyCPU Platform = "anycpu"
	PlatformX86    Platform = "x86"
	PlatformX64    Platform = "x64"
	PlatformARM64  Platform = "arm64"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformAnyCPU, PlatformX86, PlatformX64, PlatformARM64:
		return true
	}
	return false
}

// CompilationOptions mirror what a build would compile the project with.
// Diagnostics holds per-rule report levels ("error", "none", ...).
type CompilationOptions struct {
	OutputKind  OutputKind        `msgpack:"output_kind"`
	Platform    Platform          `msgpack:"platform"`
	Diagnostics map[string]string `msgpack:"diagnostics,omitempty"`
	Symbols     []string          `msgpack:"symbols,omitempty"`
}

// Clone returns a deep copy.
func (o CompilationOptions) Clone() CompilationOptions {
	out := o
	if o.Diagnostics != nil {
		out.Diagnostics = make(map[string]string, len(o.Diagnostics))
		for k, v := range o.Diagnostics {
			out.Diagnostics[k] = v
		}
	}
	out.Symbols = append([]string(nil), o.Symbols...)
	return out
}

type DocumentInfo struct {
	FilePath string   `msgpack:"file_path"`
	Folders  []string `msgpack:"folders,omitempty"`
}

// Metadata is the evaluated form of a project file as returned by the
// metadata worker. References are resolved recursively; a project that
// already appeared earlier in the same tree is sent as a stub carrying
// only ID and FilePath.
type Metadata struct {
	Schema                 uint16             `msgpack:"schema"`
	ID                     string             `msgpack:"id"`
	Name                   string             `msgpack:"name"`
	Language               string             `msgpack:"language"`
	FilePath               string             `msgpack:"file_path"`
	OutputPath             string             `msgpack:"output_path"`
	IntermediateOutputPath string             `msgpack:"intermediate_output_path"`
	Fingerprint            string             `msgpack:"fingerprint,omitempty"`
	Stub                   bool               `msgpack:"stub,omitempty"`
	Options                CompilationOptions `msgpack:"options"`
	Documents              []DocumentInfo     `msgpack:"documents,omitempty"`
	AdditionalDocuments    []DocumentInfo     `msgpack:"additional_documents,omitempty"`
	References             []Metadata         `msgpack:"references,omitempty"`
}

// ErrSchemaMismatch is returned by Validate for payloads of another schema.
var ErrSchemaMismatch = errors.New("metadata schema mismatch")

// Validate checks a received payload, references included.
func (m *Metadata) Validate() error {
	return m.validate(0)
}

const maxReferenceDepth = 256

func (m *Metadata) validate(depth int) error {
	if depth > maxReferenceDepth {
		return fmt.Errorf("project %s: reference chain deeper than %d", m.FilePath, maxReferenceDepth)
	}
	if m.Schema != SchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, m.Schema, SchemaVersion)
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("project %q: missing id", m.FilePath)
	}
	if strings.TrimSpace(m.FilePath) == "" {
		return fmt.Errorf("project %s: missing file path", m.ID)
	}
	if m.Stub {
		if len(m.Documents) > 0 || len(m.References) > 0 {
			return fmt.Errorf("project %s: stub carries documents or references", m.FilePath)
		}
		return nil
	}
	if strings.TrimSpace(m.Language) == "" {
		return fmt.Errorf("project %s: missing language", m.FilePath)
	}
	if !m.Options.OutputKind.Valid() {
		return fmt.Errorf("project %s: unknown output kind %q", m.FilePath, m.Options.OutputKind)
	}
	if !m.Options.Platform.Valid() {
		return fmt.Errorf("project %s: unknown platform %q", m.FilePath, m.Options.Platform)
	}
	for _, d := range append(append([]DocumentInfo(nil), m.Documents...), m.AdditionalDocuments...) {
		if strings.TrimSpace(d.FilePath) == "" {
			return fmt.Errorf("project %s: document without path", m.FilePath)
		}
	}
	for i := range m.References {
		if err := m.References[i].validate(depth + 1); err != nil {
			return err
		}
	}
	return nil
}
