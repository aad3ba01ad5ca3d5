// Package transcode maps items between the API shape and the storage shape.
//
// The two are near-inverses: the storage shape keeps only the EUR normalized
// price and the languages it has dedicated fields for.
package transcode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blitzfilter/item/internal/currency"
	"github.com/blitzfilter/item/internal/db"
	"github.com/blitzfilter/item/internal/language"
	"github.com/blitzfilter/item/internal/model"
)

var (
	// ErrMissingRequiredField is returned when a field needed to derive keys is absent
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidSegment is returned when an identifier cannot be used as a key segment
	ErrInvalidSegment = errors.New("invalid key segment")
)

// TimestampLayout is RFC3339 with fixed millisecond precision, so that
// timestamps written in UTC sort lexically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Transcoder converts between the API and storage representations
type Transcoder struct {
	rates currency.RateTable
	now   func() time.Time
}

// Option configures a Transcoder
type Option func(*Transcoder)

// WithRates replaces the EUR conversion table
func WithRates(rates currency.RateTable) Option {
	return func(t *Transcoder) {
		t.rates = rates
	}
}

// WithClock replaces the clock used to stamp events without created time
func WithClock(now func() time.Time) Option {
	return func(t *Transcoder) {
		t.now = now
	}
}

// New creates a Transcoder using the default rates and the system clock
func New(opts ...Option) *Transcoder {
	t := &Transcoder{
		rates: currency.DefaultRates,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToStorage converts an API item into a storage event, deriving keys and hash
func (t *Transcoder) ToStorage(item model.Item) (db.ItemEvent, error) {
	if item.ItemID == "" {
		return db.ItemEvent{}, fmt.Errorf("%w: itemId", ErrMissingRequiredField)
	}
	if item.SourceID == nil || *item.SourceID == "" {
		return db.ItemEvent{}, fmt.Errorf("%w: sourceId", ErrMissingRequiredField)
	}
	if strings.Contains(*item.SourceID, db.Separator) {
		return db.ItemEvent{}, fmt.Errorf("%w: sourceId %q contains %q", ErrInvalidSegment, *item.SourceID, db.Separator)
	}
	if strings.Contains(item.ItemID, db.Separator) {
		return db.ItemEvent{}, fmt.Errorf("%w: itemId %q contains %q", ErrInvalidSegment, item.ItemID, db.Separator)
	}

	created := item.Created
	if created == nil {
		now := t.now().UTC().Format(TimestampLayout)
		created = &now
	} else if _, err := time.Parse(time.RFC3339, *created); err != nil {
		return db.ItemEvent{}, fmt.Errorf("%w: created %q is not RFC3339", ErrInvalidSegment, *created)
	}

	sourceID := *item.SourceID
	itemID := db.ItemID(sourceID, item.ItemID)
	eventID := db.EventID(itemID, *created)

	var price *float32
	if item.Price != nil {
		eur := currency.ToEUR(*item.Price, t.rates)
		price = &eur
	}

	ev := db.ItemEvent{
		ItemID:        itemID,
		Created:       created,
		PartyID:       &sourceID,
		EventID:       &eventID,
		State:         item.State,
		Price:         price,
		Category:      item.Category,
		NameEN:        lookup(item.Name, language.EN),
		DescriptionEN: lookup(item.Description, language.EN),
		NameDE:        lookup(item.Name, language.DE),
		DescriptionDE: lookup(item.Description, language.DE),
		URL:           item.URL,
		ImageURL:      item.ImageURL,
	}
	ev.Hash = ev.Fingerprint()

	return ev, nil
}

// ToAPI converts a storage event (or materialized item) into the API shape.
// The source is taken from party_id, or from the composite item id when absent.
func ToAPI(ev db.ItemEvent) model.Item {
	sourceID := ev.PartyID
	localID := ev.ItemID
	if source, local, ok := db.SplitItemID(ev.ItemID); ok {
		localID = local
		if sourceID == nil {
			sourceID = &source
		}
	}

	var price *currency.Price
	if ev.Price != nil {
		price = &currency.Price{Currency: currency.EUR, Amount: *ev.Price}
	}

	return model.Item{
		ItemID:      localID,
		SourceID:    sourceID,
		Created:     ev.Created,
		State:       ev.State,
		Price:       price,
		Category:    ev.Category,
		Name:        i18n(ev.NameEN, ev.NameDE),
		Description: i18n(ev.DescriptionEN, ev.DescriptionDE),
		URL:         ev.URL,
		ImageURL:    ev.ImageURL,
	}
}

func lookup(text language.I18nString, lang language.Language) *string {
	v, ok := text[lang]
	if !ok {
		return nil
	}
	return &v
}

func i18n(en, de *string) language.I18nString {
	if en == nil && de == nil {
		return nil
	}
	text := make(language.I18nString, 2)
	if en != nil {
		text[language.EN] = *en
	}
	if de != nil {
		text[language.DE] = *de
	}
	return text
}
