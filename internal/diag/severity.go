package diag

import (
	"fmt"
	"strings"
)

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevHidden diagnostics are not shown but still fixable.
	SevHidden Severity = iota
	SevInfo
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevHidden:
		return "hidden"
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// ParseSeverity accepts the lowercase names used in manifests.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hidden":
		return SevHidden, nil
	case "info":
		return SevInfo, nil
	case "warning", "warn", "":
		return SevWarning, nil
	case "error":
		return SevError, nil
	}
	return SevWarning, fmt.Errorf("unknown severity %q", s)
}

// ReportLevel is a per-rule severity override.
type ReportLevel uint8

const (
	LevelDefault ReportLevel = iota
	LevelSuppress
	LevelHidden
	LevelInfo
	LevelWarning
	LevelError
)

func (l ReportLevel) String() string {
	switch l {
	case LevelDefault:
		return "default"
	case LevelSuppress:
		return "none"
	case LevelHidden:
		return "hidden"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// ParseReportLevel understands both rule-set spellings ("none") and the
// names used on the command line ("suppress").
func ParseReportLevel(s string) (ReportLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default", "":
		return LevelDefault, nil
	case "none", "suppress", "off":
		return LevelSuppress, nil
	case "hidden":
		return LevelHidden, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelDefault, fmt.Errorf("unknown report level %q", s)
}

// Apply resolves the override against a default severity. ok is false
// when the rule is suppressed.
func (l ReportLevel) Apply(def Severity) (sev Severity, ok bool) {
	switch l {
	case LevelSuppress:
		return def, false
	case LevelHidden:
		return SevHidden, true
	case LevelInfo:
		return SevInfo, true
	case LevelWarning:
		return SevWarning, true
	case LevelError:
		return SevError, true
	}
	return def, true
}
