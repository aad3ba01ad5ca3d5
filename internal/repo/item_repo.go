package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/blitzfilter/item/internal/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrItemNotFound is returned when an item has no events
	ErrItemNotFound = errors.New("item not found")

	// ErrEventAlreadyExists is returned when an event with the same item and created timestamp is stored
	ErrEventAlreadyExists = errors.New("event already exists")
)

// ItemRepository reads and appends item events in the single table
type ItemRepository struct {
	db     *db.DB
	log    *zap.Logger
	tracer trace.Tracer
}

// NewItemRepository creates a new item repository
func NewItemRepository(database *db.DB, logger *zap.Logger) *ItemRepository {
	return &ItemRepository{
		db:     database,
		log:    logger,
		tracer: otel.Tracer("blitzfilter/items"),
	}
}

// AppendEvent stores an immutable item event
func (r *ItemRepository) AppendEvent(ctx context.Context, ev db.ItemEvent) error {
	ctx, span := r.tracer.Start(ctx, "items.append",
		trace.WithAttributes(
			attribute.String("item.id", ev.ItemID),
			attribute.String("event.hash", ev.Hash),
		),
	)
	defer span.End()

	rec := ev.Record()

	var existing []db.Record
	res := r.db.WithContext(ctx).
		Select("pk").
		Where("pk = ? AND sk = ?", rec.PK, rec.SK).
		Limit(1).
		Find(&existing)
	if res.Error != nil {
		r.log.Error("Failed to check event existence", zap.String("item_id", ev.ItemID), zap.Error(res.Error))
		span.RecordError(res.Error)
		return res.Error
	}
	if res.RowsAffected > 0 {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return ErrEventAlreadyExists
	}

	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEventAlreadyExists
		}
		if !errors.Is(err, db.ErrMissingSortKey) {
			r.log.Error("Failed to append event", zap.String("item_id", ev.ItemID), zap.Error(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return err
	}

	r.log.Debug("Event appended", zap.String("item_id", ev.ItemID), zap.String("sk", rec.SK))
	return nil
}

// ListEvents returns all events of an item, newest first by created instant
func (r *ItemRepository) ListEvents(ctx context.Context, itemID string) ([]db.ItemEvent, error) {
	ctx, span := r.tracer.Start(ctx, "items.list_events",
		trace.WithAttributes(attribute.String("item.id", itemID)),
	)
	defer span.End()

	var records []db.Record
	err := r.db.WithContext(ctx).
		Where("pk = ?", db.ItemKey.Encode(itemID)).
		Order("sk DESC").
		Find(&records).Error
	if err != nil {
		r.log.Error("Failed to list events", zap.String("item_id", itemID), zap.Error(err))
		span.RecordError(err)
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrItemNotFound
	}

	events := make([]db.ItemEvent, 0, len(records))
	for _, rec := range records {
		ev, err := rec.Event()
		if err != nil {
			r.log.Warn("Failed to decode event", zap.String("pk", rec.PK), zap.String("sk", rec.SK), zap.Error(err))
			span.RecordError(err)
			return nil, fmt.Errorf("decode %s/%s: %w", rec.PK, rec.SK, err)
		}
		events = append(events, ev)
	}
	// sk order is only chronological for timestamps sharing an offset
	db.NewestFirst(events)

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// ListEventHashes reads the source/event/hash index of a source, ordered by event id
func (r *ItemRepository) ListEventHashes(ctx context.Context, sourceID string) ([]db.EventHash, error) {
	ctx, span := r.tracer.Start(ctx, "items.list_hashes",
		trace.WithAttributes(attribute.String("source.id", sourceID)),
	)
	defer span.End()

	var rows []db.HashRecord
	err := r.db.WithContext(ctx).
		Model(&db.Record{}).
		Select("party_id", "event_id", "hash").
		Where("party_id = ?", db.SourceKey.Encode(sourceID)).
		Order("event_id").
		Find(&rows).Error
	if err != nil {
		r.log.Error("Failed to list event hashes", zap.String("source_id", sourceID), zap.Error(err))
		span.RecordError(err)
		return nil, err
	}

	hashes := make([]db.EventHash, 0, len(rows))
	for _, row := range rows {
		h, err := row.EventHash()
		if err != nil {
			return nil, fmt.Errorf("decode hash index %s: %w", row.EventID, err)
		}
		hashes = append(hashes, h)
	}

	span.SetAttributes(attribute.Int("hashes.loaded", len(hashes)))
	return hashes, nil
}

// CountEvents returns the number of stored events
func (r *ItemRepository) CountEvents(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&db.Record{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}
