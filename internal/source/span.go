package source

import (
	"fmt"
)

type Span struct {
	File  FileID
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Overlaps reports whether two spans of the same file intersect.
// Two empty spans at the same offset overlap, an empty span touching
// the border of a non-empty one does not.
func (s Span) Overlaps(other Span) bool {
	if s.File != other.File {
		return false
	}
	if s.Empty() && other.Empty() {
		return s.Start == other.Start
	}
	if s.Empty() {
		return s.Start > other.Start && s.Start < other.End
	}
	if other.Empty() {
		return other.Start > s.Start && other.Start < s.End
	}
	return s.Start < other.End && other.Start < s.End
}

// Valid reports whether the span fits into a text of n bytes.
func (s Span) Valid(n uint32) bool {
	return s.Start <= s.End && s.End <= n
}
