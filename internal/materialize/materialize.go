// Package materialize folds partial item events into the current item.
package materialize

import (
	"errors"

	"github.com/blitzfilter/item/internal/db"
)

// ErrEmptyEventList is returned when there is no event to materialize
var ErrEmptyEventList = errors.New("cannot materialize an empty event list")

// Materialize merges events ordered newest-first into one item. The item id is
// taken from the newest event; every other field from the newest event that
// sets it. The order is not validated.
func Materialize(events []db.ItemEvent) (db.ItemEvent, error) {
	if len(events) == 0 {
		return db.ItemEvent{}, ErrEmptyEventList
	}

	return Fold(events[0], events[1:]...), nil
}

// Fold fills the unset fields of current from older events, newest-first,
// and recomputes the hash of the result.
func Fold(current db.ItemEvent, older ...db.ItemEvent) db.ItemEvent {
	merged := current
	for _, ev := range older {
		merged = fill(merged, ev)
	}
	merged.Hash = merged.Fingerprint()
	return merged
}

func fill(dst, src db.ItemEvent) db.ItemEvent {
	dst.Created = first(dst.Created, src.Created)
	dst.PartyID = first(dst.PartyID, src.PartyID)
	dst.EventID = first(dst.EventID, src.EventID)
	dst.State = first(dst.State, src.State)
	dst.Price = first(dst.Price, src.Price)
	dst.Category = first(dst.Category, src.Category)
	dst.NameEN = first(dst.NameEN, src.NameEN)
	dst.DescriptionEN = first(dst.DescriptionEN, src.DescriptionEN)
	dst.NameDE = first(dst.NameDE, src.NameDE)
	dst.DescriptionDE = first(dst.DescriptionDE, src.DescriptionDE)
	dst.URL = first(dst.URL, src.URL)
	dst.ImageURL = first(dst.ImageURL, src.ImageURL)
	return dst
}

func first[T any](newer, older *T) *T {
	if newer != nil {
		return newer
	}
	return older
}
