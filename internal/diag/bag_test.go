package diag

import (
	"testing"

	"autofix/internal/source"
)

func loc(path string, line, col uint32) Location {
	return Location{Path: path, Start: source.LineCol{Line: line, Col: col}, End: source.LineCol{Line: line, Col: col + 1}}
}

func TestBagSortIsDeterministic(t *testing.T) {
	b := NewBag(0)
	b.Add(Diagnostic{RuleID: "R2", Location: loc("b.txt", 1, 1)})
	b.Add(Diagnostic{RuleID: "R1", Location: loc("a.txt", 2, 1)})
	b.Add(Diagnostic{RuleID: "R2", Location: loc("a.txt", 1, 5)})
	b.Add(Diagnostic{RuleID: "R1", Location: loc("a.txt", 1, 5)})
	b.Add(Diagnostic{RuleID: "R1", Location: loc("a.txt", 10, 1)})
	b.Sort()

	want := []struct {
		rule string
		path string
		line uint32
	}{
		{"R1", "a.txt", 1},
		{"R2", "a.txt", 1},
		{"R1", "a.txt", 2},
		{"R1", "a.txt", 10},
		{"R2", "b.txt", 1},
	}
	for i, w := range want {
		got := b.Items()[i]
		if got.RuleID != w.rule || got.Location.Path != w.path || got.Location.Start.Line != w.line {
			t.Fatalf("item %d = %s %s:%d, want %s %s:%d", i, got.RuleID, got.Location.Path, got.Location.Start.Line, w.rule, w.path, w.line)
		}
	}
}

func TestBagDedupKeepsFirst(t *testing.T) {
	b := NewBag(0)
	sp := source.Span{File: 1, Start: 0, End: 1}
	b.Add(
		Diagnostic{RuleID: "R1", Primary: sp, Message: "m", Severity: SevError},
		Diagnostic{RuleID: "R1", Primary: sp, Message: "m"},
		Diagnostic{RuleID: "R1", Primary: sp, Message: "other"},
		Diagnostic{RuleID: "R2", Primary: sp, Message: "m"},
	)
	b.Dedup()
	if b.Len() != 3 {
		t.Fatalf("expected 3 after dedup, got %d", b.Len())
	}
	if b.Items()[0].Severity != SevError {
		t.Fatalf("dedup must keep the first report")
	}
}

func TestBagFilterAndByRule(t *testing.T) {
	b := NewBag(0)
	b.Add(Diagnostic{RuleID: "R1", Severity: SevError})
	b.Add(Diagnostic{RuleID: "R2"})
	b.Add(Diagnostic{RuleID: "R1"})
	if tally := b.Tally(); tally[SevError] != 1 || tally[SevHidden] != 2 {
		t.Fatalf("unexpected tally %v", tally)
	}
	if n := len(b.ByRule("R1")); n != 2 {
		t.Fatalf("ByRule(R1) = %d", n)
	}
	b.Filter(func(d Diagnostic) bool { return d.RuleID != "R1" })
	if b.Len() != 1 || b.Items()[0].RuleID != "R2" {
		t.Fatalf("unexpected filter result %+v", b.Items())
	}
}

func TestCodeID(t *testing.T) {
	if got := NoFixProvider.ID(); got != "AF005" {
		t.Fatalf("ID = %q", got)
	}
	if got := SessionCanceled.String(); got != "AF013" {
		t.Fatalf("String = %q", got)
	}
	if Code(999).Title() != UnknownCode.Title() {
		t.Fatalf("unknown code must fall back to the generic title")
	}
}
