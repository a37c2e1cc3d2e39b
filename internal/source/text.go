package source

import (
	"fmt"
	"math"
	"sync"
)

// Text is an immutable document body with a lazily built line index.
type Text struct {
	content []byte

	once    sync.Once
	lineIdx []uint32
}

// NewText wraps content. The slice must not be modified afterwards.
func NewText(content []byte) *Text {
	if uint64(len(content)) > math.MaxUint32 {
		panic("source: text larger than 4GiB")
	}
	return &Text{content: content}
}

// NewTextString is a convenience wrapper for tests and scripts.
func NewTextString(s string) *Text {
	return NewText([]byte(s))
}

func (t *Text) Bytes() []byte  { return t.content }
func (t *Text) String() string { return string(t.content) }

// Len returns the length in bytes.
func (t *Text) Len() uint32 {
	return uint32(len(t.content)) //nolint:gosec // checked in NewText
}

func (t *Text) index() []uint32 {
	t.once.Do(func() {
		t.lineIdx = buildLineIndex(t.content)
	})
	return t.lineIdx
}

// Position maps a byte offset to a 1-based line/column. Offsets past the
// end are clamped.
func (t *Text) Position(off uint32) LineCol {
	if off > t.Len() {
		off = t.Len()
	}
	return toLineCol(t.index(), off)
}

// Resolve maps both ends of a span.
func (t *Text) Resolve(sp Span) (start, end LineCol) {
	return t.Position(sp.Start), t.Position(sp.End)
}

// LineCount returns the number of lines; a trailing newline does not
// open a new line.
func (t *Text) LineCount() int {
	idx := t.index()
	if len(t.content) == 0 {
		return 0
	}
	if t.content[len(t.content)-1] == '\n' {
		return len(idx)
	}
	return len(idx) + 1
}

// LineSpan returns the span of line n (1-based) without its newline.
func (t *Text) LineSpan(n int) (Span, bool) {
	if n < 1 || n > t.LineCount() {
		return Span{}, false
	}
	idx := t.index()
	var start uint32
	if n > 1 {
		start = idx[n-2] + 1
	}
	end := t.Len()
	if n-1 < len(idx) {
		end = idx[n-1]
	}
	return Span{Start: start, End: end}, true
}

// Line returns the text of line n (1-based) without its newline.
func (t *Text) Line(n int) string {
	sp, ok := t.LineSpan(n)
	if !ok {
		return ""
	}
	return string(t.content[sp.Start:sp.End])
}

// Slice returns the bytes covered by sp.
func (t *Text) Slice(sp Span) ([]byte, error) {
	if !sp.Valid(t.Len()) {
		return nil, fmt.Errorf("span %d-%d out of range (len %d)", sp.Start, sp.End, t.Len())
	}
	return t.content[sp.Start:sp.End], nil
}
