package db

import (
	"encoding/json"
	"errors"

	"github.com/blitzfilter/item/internal/fingerprint"
	"github.com/blitzfilter/item/internal/model"
	"gorm.io/gorm"
)

// ErrMissingSortKey is returned when a record without created timestamp is persisted
var ErrMissingSortKey = errors.New("record has no sort key")

// ItemEvent is an item event (or a materialized item) in the storage shape.
// Identifiers are held unprefixed; prefixes are applied when serialized.
type ItemEvent struct {
	// sourceId#itemId
	ItemID string
	// RFC3339, e.g. 2025-01-01T12:00:00.001+01:00
	Created *string
	// sourceId
	PartyID *string
	// sourceId#itemId#created
	EventID       *string
	State         *model.ItemState
	Price         *float32 // EUR
	Category      *string
	NameEN        *string
	DescriptionEN *string
	NameDE        *string
	DescriptionDE *string
	URL           *string
	ImageURL      *string
	Hash          string
}

// Fingerprint recomputes the content hash of the event
func (e ItemEvent) Fingerprint() string {
	return fingerprint.Fingerprint(e.State, e.Price)
}

// Record returns the prefixed single-table record of the event
func (e ItemEvent) Record() Record {
	r := Record{
		PK:            ItemKey.Encode(e.ItemID),
		PartyID:       SourceKey.EncodeOptional(e.PartyID),
		EventID:       ItemKey.EncodeOptional(e.EventID),
		State:         StateKey.EncodeOptional(e.State),
		Price:         e.Price,
		Category:      e.Category,
		NameEN:        e.NameEN,
		DescriptionEN: e.DescriptionEN,
		NameDE:        e.NameDE,
		DescriptionDE: e.DescriptionDE,
		URL:           e.URL,
		ImageURL:      e.ImageURL,
		Hash:          e.Hash,
	}
	if e.Created != nil {
		r.SK = ItemKey.Encode(*e.Created)
	}
	return r
}

// Event decodes a prefixed record
func (r Record) Event() (ItemEvent, error) {
	itemID, err := ItemKey.Decode(r.PK)
	if err != nil {
		return ItemEvent{}, err
	}

	var created *string
	if r.SK != "" {
		c, err := ItemKey.Decode(r.SK)
		if err != nil {
			return ItemEvent{}, err
		}
		created = &c
	}

	partyID, err := SourceKey.DecodeOptional(r.PartyID)
	if err != nil {
		return ItemEvent{}, err
	}

	eventID, err := ItemKey.DecodeOptional(r.EventID)
	if err != nil {
		return ItemEvent{}, err
	}

	state, err := StateKey.DecodeOptional(r.State)
	if err != nil {
		return ItemEvent{}, err
	}

	return ItemEvent{
		ItemID:        itemID,
		Created:       created,
		PartyID:       partyID,
		EventID:       eventID,
		State:         state,
		Price:         r.Price,
		Category:      r.Category,
		NameEN:        r.NameEN,
		DescriptionEN: r.DescriptionEN,
		NameDE:        r.NameDE,
		DescriptionDE: r.DescriptionDE,
		URL:           r.URL,
		ImageURL:      r.ImageURL,
		Hash:          r.Hash,
	}, nil
}

func (e ItemEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}

func (e *ItemEvent) UnmarshalJSON(b []byte) error {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	ev, err := r.Event()
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// Record is one row of the single-table store. Its JSON form is the
// storage-shape document.
type Record struct {
	PK            string   `gorm:"column:pk;primaryKey;type:varchar(512)" json:"pk"`
	SK            string   `gorm:"column:sk;primaryKey;type:varchar(64)" json:"sk,omitempty"`
	PartyID       *string  `gorm:"column:party_id;type:varchar(256);index:idx_items_party_event,priority:1" json:"party_id,omitempty"`
	EventID       *string  `gorm:"column:event_id;type:varchar(576);index:idx_items_party_event,priority:2" json:"event_id,omitempty"`
	State         *string  `gorm:"column:state;type:varchar(32)" json:"state,omitempty"`
	Price         *float32 `gorm:"column:price" json:"price,omitempty"`
	Category      *string  `gorm:"column:category;type:varchar(255)" json:"category,omitempty"`
	NameEN        *string  `gorm:"column:name_en;type:text" json:"name_en,omitempty"`
	DescriptionEN *string  `gorm:"column:description_en;type:text" json:"description_en,omitempty"`
	NameDE        *string  `gorm:"column:name_de;type:text" json:"name_de,omitempty"`
	DescriptionDE *string  `gorm:"column:description_de;type:text" json:"description_de,omitempty"`
	URL           *string  `gorm:"column:url;type:text" json:"url,omitempty"`
	ImageURL      *string  `gorm:"column:image_url;type:text" json:"image_url,omitempty"`
	Hash          string   `gorm:"column:hash;type:char(64);not null" json:"hash,omitempty"`
}

// TableName specifies the single table all item events live in
func (Record) TableName() string {
	return "items"
}

// BeforeCreate rejects rows that cannot be ordered within their partition
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.SK == "" {
		return ErrMissingSortKey
	}
	return nil
}

// EventHash is an entry of the source/event/hash index
type EventHash struct {
	// sourceId
	SourceID string
	// sourceId#itemId#created
	EventID string
	Hash    string
}

// ItemID returns the sourceId#itemId the hashed event belongs to
func (h EventHash) ItemID() string {
	return ExtractItemID(h.EventID)
}

// HashRecord is the prefixed projection of Record onto the hash index
type HashRecord struct {
	PartyID string `gorm:"column:party_id" json:"party_id"`
	EventID string `gorm:"column:event_id" json:"event_id"`
	Hash    string `gorm:"column:hash" json:"hash"`
}

// Record returns the prefixed index record
func (h EventHash) Record() HashRecord {
	return HashRecord{
		PartyID: SourceKey.Encode(h.SourceID),
		EventID: ItemKey.Encode(h.EventID),
		Hash:    h.Hash,
	}
}

// EventHash decodes a prefixed index record
func (r HashRecord) EventHash() (EventHash, error) {
	sourceID, err := SourceKey.Decode(r.PartyID)
	if err != nil {
		return EventHash{}, err
	}
	eventID, err := ItemKey.Decode(r.EventID)
	if err != nil {
		return EventHash{}, err
	}
	return EventHash{SourceID: sourceID, EventID: eventID, Hash: r.Hash}, nil
}

func (h EventHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Record())
}

func (h *EventHash) UnmarshalJSON(b []byte) error {
	var r HashRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	decoded, err := r.EventHash()
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}
