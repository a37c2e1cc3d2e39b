package diag

import (
	"fmt"
)

// Code is a stable failure code shown to users.
type Code uint16

const (
	UnknownCode Code = 0

	// загрузка модулей: понижаются до предупреждений
	ModuleIncompatible Code = 1
	ModuleLoadFailed   Code = 2
	ModuleCompile      Code = 3
	ModuleDeclaration  Code = 4

	// pre-flight
	NoFixProvider Code = 5

	// цикл исправлений
	FixProviderFailed Code = 6
	NoFixApplied      Code = 7
	FixNotApplicable  Code = 8

	InvalidConfig   Code = 9
	NoAnalyzer      Code = 10
	WorkerFailed    Code = 11
	AnalysisFailed  Code = 12
	SessionCanceled Code = 13
)

var codeDescription = map[Code]string{
	UnknownCode:        "unknown failure",
	ModuleIncompatible: "module requires a newer host",
	ModuleLoadFailed:   "module failed to load",
	ModuleCompile:      "module script failed to compile",
	ModuleDeclaration:  "invalid analyzer or fix provider declaration",
	NoFixProvider:      "no fix provider for requested rules",
	FixProviderFailed:  "fix provider failed",
	NoFixApplied:       "no fix was applied for diagnostic",
	FixNotApplicable:   "remediation produced no applicable change",
	InvalidConfig:      "invalid configuration",
	NoAnalyzer:         "no analyzer for requested rules",
	WorkerFailed:       "metadata worker failed",
	AnalysisFailed:     "analysis failed",
	SessionCanceled:    "session canceled",
}

func (c Code) ID() string {
	return fmt.Sprintf("AF%03d", int(c))
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return c.ID()
}
