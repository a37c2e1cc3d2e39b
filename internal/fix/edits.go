package fix

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"fortio.org/safecast"

	"autofix/internal/diag"
	"autofix/internal/graph"
	"autofix/internal/plugin"
	"autofix/internal/source"
)

var (
	errOutOfRange  = errors.New("edit span out of range")
	errConflict    = errors.New("edits overlap")
	errGuard       = errors.New("existing text does not match expected content")
	errForeignFile = errors.New("edit targets a document outside the project")
)

// render turns a remediation into ChangeDocument changes against snap.
// Documents whose text would not change are left out, so a no-op
// remediation yields no changes at all.
func render(snap *graph.Snapshot, id graph.ProjectID, rem *plugin.Remediation) ([]graph.Change, []source.FileID, error) {
	buckets := groupEditsByFile(rem.Edits)
	files := make([]source.FileID, 0, len(buckets))
	for f := range buckets {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })

	var (
		changes []graph.Change
		touched []source.FileID
	)
	for _, f := range files {
		doc, ok := snap.Document(f)
		if !ok || doc.Project != id {
			return nil, nil, fmt.Errorf("%w: file %d", errForeignFile, f)
		}
		before := doc.Text.Bytes()
		after, err := applyEdits(before, buckets[f])
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", doc.NativePath(), err)
		}
		if bytes.Equal(before, after) {
			continue
		}
		changes = append(changes, graph.Change{Kind: graph.ChangeDocument, Document: f, Text: after})
		touched = append(touched, f)
	}
	return changes, touched, nil
}

// applyEdits applies edits from the highest offset down so earlier
// offsets stay valid. Overlapping edits are rejected as a whole.
func applyEdits(content []byte, edits []diag.TextEdit) ([]byte, error) {
	n, err := safecast.Conv[uint32](len(content))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Span.Start == edits[j].Span.Start {
			return edits[i].Span.End > edits[j].Span.End
		}
		return edits[i].Span.Start > edits[j].Span.Start
	})
	for i, e := range edits {
		if !e.Span.Valid(n) {
			return nil, fmt.Errorf("%w: %s", errOutOfRange, e.Span)
		}
		if i > 0 && e.Span.Overlaps(edits[i-1].Span) {
			return nil, fmt.Errorf("%w: %s and %s", errConflict, e.Span, edits[i-1].Span)
		}
	}

	working := append([]byte(nil), content...)
	for _, e := range edits {
		start, end := int(e.Span.Start), int(e.Span.End)
		if e.OldText != "" && string(working[start:end]) != e.OldText {
			return nil, fmt.Errorf("%w at %s", errGuard, e.Span)
		}
		suffix := append([]byte(nil), working[end:]...)
		working = append(append(working[:start], e.NewText...), suffix...)
	}
	return working, nil
}

// resolved counts the diagnostics a batch remediation took care of: those
// whose primary span meets an edit in a changed document. A provider whose
// edits meet none of the spans gets credit for every diagnostic in the
// documents it changed.
func resolved(items []diag.Diagnostic, edits []diag.TextEdit, touched []source.FileID) int {
	changed := make(map[source.FileID]bool, len(touched))
	for _, f := range touched {
		changed[f] = true
	}
	byFile := groupEditsByFile(edits)
	n, inChanged := 0, 0
	for _, d := range items {
		if !changed[d.Document] {
			continue
		}
		inChanged++
		for _, e := range byFile[d.Document] {
			if meets(e.Span, d.Primary) {
				n++
				break
			}
		}
	}
	if n == 0 {
		return inChanged
	}
	return n
}

// meets reports whether two spans of one file overlap or touch.
func meets(a, b source.Span) bool {
	if a.File != b.File {
		return false
	}
	return a.Cover(b).Len() <= a.Len()+b.Len()
}

func groupEditsByFile(edits []diag.TextEdit) map[source.FileID][]diag.TextEdit {
	buckets := make(map[source.FileID][]diag.TextEdit)
	for _, e := range edits {
		buckets[e.Span.File] = append(buckets[e.Span.File], e)
	}
	return buckets
}
