package diag

import "autofix/internal/source"

// Reporter is the minimal sink analyzers report through.
type Reporter interface {
	Report(rule string, primary source.Span, msg string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(rule string, primary source.Span, msg string)

func (f ReporterFunc) Report(rule string, primary source.Span, msg string) {
	f(rule, primary, msg)
}
