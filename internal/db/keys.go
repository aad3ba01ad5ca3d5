package db

import (
	"strings"

	"github.com/blitzfilter/item/internal/model"
	"github.com/blitzfilter/item/internal/prefix"
)

// Key tags of the single-table layout
const (
	ItemPrefix   = "item#"
	SourcePrefix = "source#"
)

// Codecs for every prefixed column
var (
	ItemKey   = prefix.New(ItemPrefix, prefix.String)
	SourceKey = prefix.New(SourcePrefix, prefix.String)
	StateKey  = prefix.New(ItemPrefix, prefix.Enum(model.ParseItemState))
)

// Separator joins the segments of composite identifiers
const Separator = "#"

// ItemID builds the composite sourceId#itemId
func ItemID(sourceID, localID string) string {
	return sourceID + Separator + localID
}

// EventID builds the composite sourceId#itemId#created from a composite item id
func EventID(itemID, created string) string {
	return itemID + Separator + created
}

// SplitItemID splits a composite item id into source and local id
func SplitItemID(itemID string) (sourceID, localID string, ok bool) {
	return strings.Cut(itemID, Separator)
}

// ExtractItemID returns the sourceId#itemId part of an unprefixed event id.
// An id with fewer than two separators is returned unchanged.
func ExtractItemID(eventID string) string {
	count := 0
	for i := 0; i < len(eventID); i++ {
		if eventID[i] == '#' {
			count++
			if count == 2 {
				return eventID[:i]
			}
		}
	}
	return eventID
}
