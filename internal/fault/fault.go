// Package fault carries the user-visible failure taxonomy: every error that
// ends a session is a *Error with a Kind, a stable diag.Code and, when it
// is tied to a diagnostic, its exact location.
package fault

import (
	"context"
	"errors"
	"fmt"

	"autofix/internal/diag"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindConfiguration
	KindUnresolvedRule
	KindRemediation
	KindModuleLoad
	KindWorkerProcess
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindUnresolvedRule:
		return "UnresolvedRule"
	case KindRemediation:
		return "RemediationError"
	case KindModuleLoad:
		return "ModuleLoadError"
	case KindWorkerProcess:
		return "WorkerProcessError"
	case KindCanceled:
		return "Canceled"
	}
	return "InternalError"
}

type Error struct {
	Kind     Kind
	Code     diag.Code
	Message  string
	Location *diag.Location
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("error %s: %s", e.Code.ID(), e.Message)
	if e.Location != nil {
		msg = e.Location.String() + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code diag.Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Newf(kind Kind, code diag.Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and code to err. Context errors become KindCanceled
// so callers can tell an aborted session from a broken one.
func Wrap(err error, kind Kind, code diag.Code, msg string) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if kind != KindWorkerProcess {
			kind, code = KindCanceled, diag.SessionCanceled
		}
	}
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

// At returns a copy of e located at loc.
func (e *Error) At(loc diag.Location) *Error {
	cp := *e
	cp.Location = &loc
	return &cp
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns KindInternal for foreign errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

// CodeOf returns the stable code of err.
func CodeOf(err error) diag.Code {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	if errors.Is(err, context.Canceled) {
		return diag.SessionCanceled
	}
	return diag.AnalysisFailed
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err ends the session. Module load failures are
// recovered locally and never fatal.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) != KindModuleLoad
}

// Canceled converts a context error into a fault.
func Canceled(err error) *Error {
	return &Error{Kind: KindCanceled, Code: diag.SessionCanceled, Message: "session canceled", Err: err}
}
