package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/blitzfilter/item/internal/db"
	"github.com/blitzfilter/item/internal/model"
	"github.com/blitzfilter/item/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// queryErrors records every error gorm traces
type queryErrors struct {
	mu   sync.Mutex
	errs []error
}

func (q *queryErrors) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }
func (q *queryErrors) Info(context.Context, string, ...interface{})      {}
func (q *queryErrors) Warn(context.Context, string, ...interface{})      {}
func (q *queryErrors) Error(context.Context, string, ...interface{})     {}

func (q *queryErrors) Trace(_ context.Context, _ time.Time, _ func() (string, int64), err error) {
	if err == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.errs = append(q.errs, err)
}

func setupTestDB(t *testing.T) *db.DB {
	database, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	// Run migrations
	require.NoError(t, db.RunMigrations(database))

	return database
}

func event(itemID, created string, state model.ItemState, price float32) db.ItemEvent {
	source, _, _ := db.SplitItemID(itemID)
	ev := db.ItemEvent{
		ItemID:  itemID,
		Created: model.Ptr(created),
		PartyID: model.Ptr(source),
		EventID: model.Ptr(db.EventID(itemID, created)),
		State:   model.Ptr(state),
		Price:   model.Ptr(price),
	}
	ev.Hash = ev.Fingerprint()
	return ev
}

func TestAppendAndListEvents(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))
	ctx := context.Background()

	older := event("shop#1", "2025-01-01T10:00:00.000Z", model.Listed, 10)
	newer := event("shop#1", "2025-01-02T10:00:00.000Z", model.Available, 12)
	newer.NameEN = model.Ptr("Chair")

	require.NoError(t, repo.AppendEvent(ctx, older))
	require.NoError(t, repo.AppendEvent(ctx, newer))

	events, err := repo.ListEvents(ctx, "shop#1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, newer, events[0])
	assert.Equal(t, older, events[1])
}

func TestAppendEventDuplicate(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))
	ctx := context.Background()

	ev := event("shop#1", "2025-01-01T10:00:00.000Z", model.Listed, 10)
	require.NoError(t, repo.AppendEvent(ctx, ev))

	err := repo.AppendEvent(ctx, ev)
	assert.ErrorIs(t, err, ErrEventAlreadyExists)
}

func TestAppendEventWithoutCreated(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))

	err := repo.AppendEvent(context.Background(), db.ItemEvent{ItemID: "shop#1", Hash: "x"})
	assert.ErrorIs(t, err, db.ErrMissingSortKey)
}

func TestListEventsNotFound(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))

	_, err := repo.ListEvents(context.Background(), "shop#missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestListEventsKeepsItemsApart(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))
	ctx := context.Background()

	require.NoError(t, repo.AppendEvent(ctx, event("shop#1", "2025-01-01T10:00:00.000Z", model.Listed, 10)))
	require.NoError(t, repo.AppendEvent(ctx, event("shop#2", "2025-01-01T10:00:00.000Z", model.Sold, 20)))

	events, err := repo.ListEvents(ctx, "shop#2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.Sold, *events[0].State)
}

func TestListEventHashes(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))
	ctx := context.Background()

	a := event("shop#1", "2025-01-01T10:00:00.000Z", model.Listed, 10)
	b := event("shop#2", "2025-01-01T11:00:00.000Z", model.Sold, 20)
	other := event("market#1", "2025-01-01T10:00:00.000Z", model.Listed, 10)
	for _, ev := range []db.ItemEvent{b, a, other} {
		require.NoError(t, repo.AppendEvent(ctx, ev))
	}

	hashes, err := repo.ListEventHashes(ctx, "shop")
	require.NoError(t, err)
	require.Len(t, hashes, 2)

	assert.Equal(t, db.EventHash{SourceID: "shop", EventID: *a.EventID, Hash: a.Hash}, hashes[0])
	assert.Equal(t, "shop#1", hashes[0].ItemID())
	assert.Equal(t, "shop#2", hashes[1].ItemID())

	total, err := repo.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestListEventsOrdersMixedOffsetsByInstant(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t), logger.NewLogger("test", "info"))
	ctx := context.Background()

	// 11:00Z
	sold := event("shop#1", "2025-01-01T12:00:00.000+01:00", model.Sold, 10)
	available := event("shop#1", "2025-01-01T11:30:00.000Z", model.Available, 10)
	require.NoError(t, repo.AppendEvent(ctx, sold))
	require.NoError(t, repo.AppendEvent(ctx, available))

	events, err := repo.ListEvents(ctx, "shop#1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, available, events[0])
	assert.Equal(t, sold, events[1])
}

func TestAppendEventTracesNoQueryErrors(t *testing.T) {
	database := setupTestDB(t)
	recorder := &queryErrors{}
	quiet := &db.DB{DB: database.Session(&gorm.Session{Logger: recorder})}
	repo := NewItemRepository(quiet, logger.NewLogger("test", "info"))

	require.NoError(t, repo.AppendEvent(context.Background(), event("shop#1", "2025-01-01T10:00:00.000Z", model.Listed, 10)))

	assert.Empty(t, recorder.errs)
}
