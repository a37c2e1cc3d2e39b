package diag

import (
	"cmp"
	"slices"

	"autofix/internal/source"
)

// Bag collects the diagnostics of one analysis pass. It is not safe for
// concurrent use; analyzers report into their own bags.
type Bag struct {
	items []Diagnostic
}

// NewBag returns an empty bag with room for n diagnostics.
func NewBag(n int) *Bag {
	return &Bag{items: make([]Diagnostic, 0, max(n, 16))}
}

func (b *Bag) Add(ds ...Diagnostic) {
	b.items = append(b.items, ds...)
}

func (b *Bag) Len() int { return len(b.items) }

// Items returns the bag's backing slice; callers must not modify it.
func (b *Bag) Items() []Diagnostic { return b.items }

// Tally counts diagnostics per severity.
func (b *Bag) Tally() map[Severity]int {
	out := make(map[Severity]int, 4)
	for i := range b.items {
		out[b.items[i].Severity]++
	}
	return out
}

// Sort orders diagnostics by location (path, start line/col, end line/col)
// and then rule id. The order is total for distinct diagnostics, so two
// runs over the same text select fixes identically.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		if x.Location != y.Location {
			if x.Location.Less(y.Location) {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(x.RuleID, y.RuleID), cmp.Compare(x.Message, y.Message))
	})
}

type dedupKey struct {
	rule    string
	span    source.Span
	message string
}

// Dedup drops repeated reports of the same rule, span and message,
// keeping the first.
func (b *Bag) Dedup() {
	seen := make(map[dedupKey]struct{}, len(b.items))
	b.Filter(func(d Diagnostic) bool {
		k := dedupKey{d.RuleID, d.Primary, d.Message}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

// Filter keeps diagnostics for which keep returns true, in place.
func (b *Bag) Filter(keep func(Diagnostic) bool) {
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool { return !keep(d) })
}

// ByRule returns diagnostics of one rule, in bag order.
func (b *Bag) ByRule(rule string) []Diagnostic {
	var out []Diagnostic
	for _, d := range b.items {
		if d.RuleID == rule {
			out = append(out, d)
		}
	}
	return out
}
