package source

import (
	"testing"
)

func TestTextPosition(t *testing.T) {
	txt := NewTextString("ab\ncd\n\nef")

	tests := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{1, 1}},
		{1, LineCol{1, 2}},
		{2, LineCol{1, 3}}, // newline belongs to line 1
		{3, LineCol{2, 1}},
		{6, LineCol{3, 1}},
		{7, LineCol{4, 1}},
		{9, LineCol{4, 3}},
		{100, LineCol{4, 3}},
	}
	for _, tt := range tests {
		if got := txt.Position(tt.off); got != tt.want {
			t.Fatalf("Position(%d) = %+v, want %+v", tt.off, got, tt.want)
		}
	}
}

func TestTextLines(t *testing.T) {
	txt := NewTextString("one\ntwo\n")
	if n := txt.LineCount(); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
	if got := txt.Line(2); got != "two" {
		t.Fatalf("Line(2) = %q", got)
	}
	if got := txt.Line(3); got != "" {
		t.Fatalf("Line(3) = %q, want empty", got)
	}

	noNL := NewTextString("one\ntwo")
	if n := noNL.LineCount(); n != 2 {
		t.Fatalf("expected 2 lines without trailing newline, got %d", n)
	}
	sp, ok := noNL.LineSpan(2)
	if !ok || sp.Start != 4 || sp.End != 7 {
		t.Fatalf("LineSpan(2) = %+v %v", sp, ok)
	}
	if NewTextString("").LineCount() != 0 {
		t.Fatalf("empty text must have no lines")
	}
}

func TestTextSlice(t *testing.T) {
	txt := NewTextString("hello")
	b, err := txt.Slice(Span{Start: 1, End: 3})
	if err != nil || string(b) != "el" {
		t.Fatalf("Slice = %q, %v", b, err)
	}
	if _, err := txt.Slice(Span{Start: 4, End: 9}); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestSpanOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{Start: 0, End: 2}, Span{Start: 2, End: 4}, false},
		{"nested", Span{Start: 0, End: 10}, Span{Start: 2, End: 4}, true},
		{"same insertion point", Span{Start: 3, End: 3}, Span{Start: 3, End: 3}, true},
		{"insertion at border", Span{Start: 2, End: 2}, Span{Start: 2, End: 5}, false},
		{"insertion inside", Span{Start: 3, End: 3}, Span{Start: 2, End: 5}, true},
		{"other file", Span{File: 1, Start: 0, End: 5}, Span{File: 2, Start: 0, End: 5}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Overlaps(tt.b); got != tt.want {
			t.Fatalf("%s: Overlaps = %v, want %v", tt.name, got, tt.want)
		}
		if got := tt.b.Overlaps(tt.a); got != tt.want {
			t.Fatalf("%s: Overlaps is not symmetric", tt.name)
		}
	}
}
