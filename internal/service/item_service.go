// Package service ingests item events and serves materialized items.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blitzfilter/item/internal/db"
	"github.com/blitzfilter/item/internal/materialize"
	"github.com/blitzfilter/item/internal/metrics"
	"github.com/blitzfilter/item/internal/model"
	"github.com/blitzfilter/item/internal/prefix"
	"github.com/blitzfilter/item/internal/repo"
	"github.com/blitzfilter/item/internal/transcode"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Repository is the event store the service reads and appends to
type Repository interface {
	AppendEvent(ctx context.Context, ev db.ItemEvent) error
	ListEvents(ctx context.Context, itemID string) ([]db.ItemEvent, error)
	ListEventHashes(ctx context.Context, sourceID string) ([]db.EventHash, error)
}

// Publisher announces material item changes
type Publisher interface {
	PublishItemChanged(ctx context.Context, ev db.ItemEvent) error
}

// IngestResult is the outcome of storing one event
type IngestResult struct {
	Event db.ItemEvent
	// Changed reports whether the item's state or EUR price changed
	Changed bool
}

// ItemService coordinates transcoding, storage, materialization and notification
type ItemService struct {
	repo       Repository
	publisher  Publisher
	transcoder *transcode.Transcoder
	metrics    *metrics.Metrics
	log        *zap.Logger
	reads      singleflight.Group
}

// NewItemService creates a new item service
func NewItemService(r Repository, publisher Publisher, transcoder *transcode.Transcoder, m *metrics.Metrics, log *zap.Logger) *ItemService {
	return &ItemService{
		repo:       r,
		publisher:  publisher,
		transcoder: transcoder,
		metrics:    m,
		log:        log,
	}
}

// Ingest stores an API item as a new event. A change notification is
// published when the materialized hash of the item differs afterwards.
func (s *ItemService) Ingest(ctx context.Context, item model.Item) (IngestResult, error) {
	ev, err := s.transcoder.ToStorage(item)
	if err != nil {
		s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeRejected).Inc()
		return IngestResult{}, err
	}

	stored, err := s.load(ctx, ev.ItemID)
	if err != nil {
		return IngestResult{}, err
	}
	found := len(stored) > 0

	var before db.ItemEvent
	if found {
		if before, err = s.materialize(stored); err != nil {
			return IngestResult{}, err
		}
	}

	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		if errors.Is(err, repo.ErrEventAlreadyExists) {
			s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeConflict).Inc()
		}
		return IngestResult{}, err
	}

	// the new event may be older than stored ones
	history := append([]db.ItemEvent{ev}, stored...)
	db.NewestFirst(history)
	after, err := materialize.Materialize(history)
	if err != nil {
		return IngestResult{}, err
	}
	changed := !found || after.Hash != before.Hash

	if !changed {
		s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeUnchanged).Inc()
		return IngestResult{Event: ev, Changed: false}, nil
	}
	s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeChanged).Inc()

	if err := s.publisher.PublishItemChanged(ctx, after); err != nil {
		// the event is stored; consumers can catch up from the hash index
		s.metrics.PublishFailures.Inc()
		s.log.Error("Failed to publish item change", zap.String("item_id", ev.ItemID), zap.Error(err))
	}

	return IngestResult{Event: ev, Changed: true}, nil
}

// Get returns the materialized item in the API shape
func (s *ItemService) Get(ctx context.Context, sourceID, itemID string) (model.Item, error) {
	key, err := compositeID(sourceID, itemID)
	if err != nil {
		return model.Item{}, err
	}

	// a caller leaving does not cancel the read shared with others
	shared := context.WithoutCancel(ctx)
	flight := s.reads.DoChan(key, func() (interface{}, error) {
		item, found, err := s.current(shared, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, repo.ErrItemNotFound
		}
		return item, nil
	})

	select {
	case <-ctx.Done():
		return model.Item{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return model.Item{}, res.Err
		}
		return transcode.ToAPI(res.Val.(db.ItemEvent)), nil
	}
}

// History returns the stored events of an item, newest first
func (s *ItemService) History(ctx context.Context, sourceID, itemID string) ([]db.ItemEvent, error) {
	key, err := compositeID(sourceID, itemID)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.ListEvents(ctx, key)
	if err != nil {
		s.countDecodeFailure(err)
		return nil, err
	}
	return events, nil
}

// Hashes returns the source/event/hash index entries of a source
func (s *ItemService) Hashes(ctx context.Context, sourceID string) ([]db.EventHash, error) {
	if err := validSource(sourceID); err != nil {
		return nil, err
	}

	hashes, err := s.repo.ListEventHashes(ctx, sourceID)
	if err != nil {
		s.countDecodeFailure(err)
		return nil, err
	}
	return hashes, nil
}

// current materializes the stored events of an item
func (s *ItemService) current(ctx context.Context, itemID string) (db.ItemEvent, bool, error) {
	events, err := s.load(ctx, itemID)
	if err != nil || len(events) == 0 {
		return db.ItemEvent{}, false, err
	}
	item, err := s.materialize(events)
	if err != nil {
		return db.ItemEvent{}, false, err
	}
	return item, true, nil
}

// load returns the stored events of an item newest-first; none when unknown
func (s *ItemService) load(ctx context.Context, itemID string) ([]db.ItemEvent, error) {
	events, err := s.repo.ListEvents(ctx, itemID)
	if errors.Is(err, repo.ErrItemNotFound) {
		return nil, nil
	}
	if err != nil {
		s.countDecodeFailure(err)
		return nil, err
	}
	return events, nil
}

func (s *ItemService) materialize(events []db.ItemEvent) (db.ItemEvent, error) {
	item, err := materialize.Materialize(events)
	if err != nil {
		return db.ItemEvent{}, err
	}
	s.metrics.Materializations.Inc()
	s.metrics.EventsFolded.Observe(float64(len(events)))
	return item, nil
}

func (s *ItemService) countDecodeFailure(err error) {
	var decodeErr *prefix.DecodeError
	if errors.As(err, &decodeErr) {
		s.metrics.DecodeFailures.Inc()
	}
}

func compositeID(sourceID, itemID string) (string, error) {
	if err := validSource(sourceID); err != nil {
		return "", err
	}
	if itemID == "" {
		return "", fmt.Errorf("%w: itemId", transcode.ErrMissingRequiredField)
	}
	if strings.Contains(itemID, db.Separator) {
		return "", fmt.Errorf("%w: itemId %q contains %q", transcode.ErrInvalidSegment, itemID, db.Separator)
	}
	return db.ItemID(sourceID, itemID), nil
}

func validSource(sourceID string) error {
	if sourceID == "" {
		return fmt.Errorf("%w: sourceId", transcode.ErrMissingRequiredField)
	}
	if strings.Contains(sourceID, db.Separator) {
		return fmt.Errorf("%w: sourceId %q contains %q", transcode.ErrInvalidSegment, sourceID, db.Separator)
	}
	return nil
}
