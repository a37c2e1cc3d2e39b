package diag

import (
	"fmt"

	"autofix/internal/source"
)

// Location is a span resolved for humans.
type Location struct {
	Path  string
	Start source.LineCol
	End   source.LineCol
}

// String renders path(line,col,endLine,endCol), the form build tools
// print for located messages.
func (l Location) String() string {
	return fmt.Sprintf("%s(%d,%d,%d,%d)", l.Path, l.Start.Line, l.Start.Col, l.End.Line, l.End.Col)
}

// Less orders locations by path, start, then end.
func (l Location) Less(other Location) bool {
	if l.Path != other.Path {
		return l.Path < other.Path
	}
	if l.Start != other.Start {
		return l.Start.Less(other.Start)
	}
	return l.End.Less(other.End)
}

type Diagnostic struct {
	RuleID   string
	Severity Severity
	Message  string
	Document source.FileID
	Primary  source.Span
	Location Location
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s %s: %s", d.Location, d.Severity, d.RuleID, d.Message)
}

// TextEdit replaces Span with NewText. A non-empty OldText must match the
// current content of Span for the edit to apply.
type TextEdit struct {
	Span    source.Span
	NewText string
	OldText string
}
