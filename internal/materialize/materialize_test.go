package materialize

import (
	"testing"

	"github.com/blitzfilter/item/internal/db"
	"github.com/blitzfilter/item/internal/fingerprint"
	"github.com/blitzfilter/item/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMaterializeNewestWinsOlderFillsGaps(t *testing.T) {
	events := []db.ItemEvent{
		{
			ItemID: "shop#42",
			State:  model.Ptr(model.Sold),
			Price:  model.Ptr(float32(37)),
		},
		{
			ItemID:        "shop#42",
			State:         model.Ptr(model.Available),
			Price:         model.Ptr(float32(37)),
			Category:      model.Ptr("foo"),
			NameEN:        model.Ptr("bar"),
			DescriptionEN: model.Ptr("baz"),
			URL:           model.Ptr("https://shop.example/42"),
		},
	}

	got, err := Materialize(events)

	require.NoError(t, err)
	assert.Equal(t, "shop#42", got.ItemID)
	assert.Equal(t, model.Sold, *got.State)
	assert.Equal(t, float32(37), *got.Price)
	assert.Equal(t, "foo", *got.Category)
	assert.Equal(t, "bar", *got.NameEN)
	assert.Equal(t, "baz", *got.DescriptionEN)
	assert.Equal(t, "https://shop.example/42", *got.URL)
	assert.Nil(t, got.NameDE)
	assert.Nil(t, got.ImageURL)
	assert.Equal(t, fingerprint.Fingerprint(got.State, got.Price), got.Hash)
}

func TestMaterializeEmpty(t *testing.T) {
	_, err := Materialize(nil)
	assert.ErrorIs(t, err, ErrEmptyEventList)

	_, err = Materialize([]db.ItemEvent{})
	assert.ErrorIs(t, err, ErrEmptyEventList)
}

func TestMaterializeTakesItemIDFromNewest(t *testing.T) {
	got, err := Materialize([]db.ItemEvent{
		{ItemID: "shop#new"},
		{ItemID: "shop#old", State: model.Ptr(model.Listed)},
	})

	require.NoError(t, err)
	assert.Equal(t, "shop#new", got.ItemID)
	assert.Equal(t, model.Listed, *got.State)
}

func TestMaterializeSingleEvent(t *testing.T) {
	ev := db.ItemEvent{ItemID: "shop#42", State: model.Ptr(model.Reserved), Hash: "stale"}

	got, err := Materialize([]db.ItemEvent{ev})

	require.NoError(t, err)
	assert.Equal(t, ev.ItemID, got.ItemID)
	assert.Equal(t, ev.State, got.State)
	assert.Equal(t, ev.Fingerprint(), got.Hash)
}

func TestMaterializeDoesNotMutateInput(t *testing.T) {
	events := []db.ItemEvent{
		{ItemID: "shop#42"},
		{ItemID: "shop#42", Category: model.Ptr("chairs")},
	}

	_, err := Materialize(events)

	require.NoError(t, err)
	assert.Nil(t, events[0].Category)
	assert.Empty(t, events[0].Hash)
}

func optional[T any](gen *rapid.Generator[T]) *rapid.Generator[*T] {
	return rapid.Custom(func(t *rapid.T) *T {
		if !rapid.Bool().Draw(t, "present") {
			return nil
		}
		v := gen.Draw(t, "value")
		return &v
	})
}

var itemEvent = rapid.Custom(func(t *rapid.T) db.ItemEvent {
	text := optional(rapid.StringN(0, 8, -1))
	return db.ItemEvent{
		ItemID:        "shop#42",
		Created:       text.Draw(t, "created"),
		PartyID:       text.Draw(t, "party"),
		EventID:       text.Draw(t, "event"),
		State:         optional(rapid.SampledFrom(model.ItemStates())).Draw(t, "state"),
		Price:         optional(rapid.Float32Range(0, 10000)).Draw(t, "price"),
		Category:      text.Draw(t, "category"),
		NameEN:        text.Draw(t, "nameEN"),
		DescriptionEN: text.Draw(t, "descriptionEN"),
		NameDE:        text.Draw(t, "nameDE"),
		DescriptionDE: text.Draw(t, "descriptionDE"),
		URL:           text.Draw(t, "url"),
		ImageURL:      text.Draw(t, "imageURL"),
	}
})

func TestMaterializeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		events := rapid.SliceOfN(itemEvent, 1, 6).Draw(t, "events")

		once, err := Materialize(events)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, _ := Materialize(events)
		assert.Equal(t, once, second)

		// folding the result again changes nothing
		again, _ := Materialize([]db.ItemEvent{once})
		assert.Equal(t, once, again)
	})
}

func TestMaterializeEmptyNewestEventOnlyMovesIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		events := rapid.SliceOfN(itemEvent, 1, 6).Draw(t, "events")
		before, _ := Materialize(events)

		newest := db.ItemEvent{
			ItemID:  "shop#42",
			Created: model.Ptr("9999-12-31T23:59:59.999Z"),
			EventID: model.Ptr("shop#42#9999-12-31T23:59:59.999Z"),
		}
		after, _ := Materialize(append([]db.ItemEvent{newest}, events...))

		assert.Equal(t, newest.Created, after.Created)
		assert.Equal(t, newest.EventID, after.EventID)

		after.Created = before.Created
		after.EventID = before.EventID
		assert.Equal(t, before, after)
	})
}

func TestFoldOntoCachedItem(t *testing.T) {
	cached, err := Materialize([]db.ItemEvent{
		{ItemID: "shop#42", State: model.Ptr(model.Available), Price: model.Ptr(float32(10))},
	})
	require.NoError(t, err)

	got := Fold(db.ItemEvent{ItemID: "shop#42", State: model.Ptr(model.Sold)}, cached)

	assert.Equal(t, model.Sold, *got.State)
	assert.Equal(t, float32(10), *got.Price)
	assert.NotEqual(t, cached.Hash, got.Hash)
}
