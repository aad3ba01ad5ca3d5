package db

import (
	"slices"
	"time"
)

// NewestFirst sorts events by their created instant, newest first. Offsets
// are compared as instants, not as text. Events without a parseable created
// time sort last and keep their relative order.
func NewestFirst(events []ItemEvent) {
	slices.SortStableFunc(events, func(a, b ItemEvent) int {
		ta, okA := a.CreatedAt()
		tb, okB := b.CreatedAt()
		switch {
		case okA && okB:
			return tb.Compare(ta)
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
}

// CreatedAt parses the created timestamp of the event
func (e ItemEvent) CreatedAt() (time.Time, bool) {
	if e.Created == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *e.Created)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
