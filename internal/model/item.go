// Package model holds the API-facing shape of a catalog item.
package model

import (
	"github.com/blitzfilter/item/internal/currency"
	"github.com/blitzfilter/item/internal/language"
)

// Item is a (partial) item as exchanged over the API.
// ItemID is local to its source; the pair (SourceID, ItemID) is globally unique.
// A nil field means "unchanged" when the Item describes an event.
type Item struct {
	ItemID      string              `json:"itemId"`
	SourceID    *string             `json:"sourceId,omitempty"`
	Created     *string             `json:"created,omitempty"`
	State       *ItemState          `json:"state,omitempty"`
	Price       *currency.Price     `json:"price,omitempty"`
	Category    *string             `json:"category,omitempty"`
	Name        language.I18nString `json:"name,omitempty"`
	Description language.I18nString `json:"description,omitempty"`
	URL         *string             `json:"url,omitempty"`
	ImageURL    *string             `json:"imageUrl,omitempty"`
}

// Ptr returns a pointer to v, for filling optional fields in literals
func Ptr[T any](v T) *T {
	return &v
}
