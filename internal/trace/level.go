package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff      Level = iota // no tracing
	LevelSession               // session boundaries only
	LevelPhase                 // + phases
	LevelPass                  // + analysis passes and fix applications
	LevelDocument              // everything
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelSession:
		return "session"
	case LevelPhase:
		return "phase"
	case LevelPass:
		return "pass"
	case LevelDocument:
		return "document"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff, nil
	case "session":
		return LevelSession, nil
	case "phase":
		return LevelPhase, nil
	case "pass":
		return LevelPass, nil
	case "document", "debug":
		return LevelDocument, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|session|phase|pass|document)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	if l == LevelOff {
		return false
	}
	return uint8(scope) <= uint8(l)
}
