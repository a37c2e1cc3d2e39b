// Package diag defines the diagnostic model shared by analyzers, the fix
// engine and the CLI.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - RuleID – the rule an analyzer reported, e.g. "AF1001".
//   - Severity – Hidden, Info, Warning, Error (severity.go). The reported
//     severity is the rule's default after overrides were resolved.
//   - Message – human oriented text.
//   - Primary – byte span inside the owning document.
//   - Location – the same span resolved to path and 1-based line/column.
//
// Diagnostics are ephemeral: every analysis pass recomputes them.
//
// # Failure codes
//
// Code (codes.go) is the stable identifier of a failure surfaced to users,
// rendered as AF001..AF013. Codes never change meaning between releases.
//
// # Severity overrides
//
// ReportLevel values come from the project file, an optional rule-set file
// (ruleset.go) and the suppress/escalate lists of an invocation. Merge
// applies them in that order so the invocation always wins.
//
// # Edits
//
// TextEdit describes one replacement in document coordinates. OldText is an
// optional guard the fix engine checks before applying the edit.
package diag
