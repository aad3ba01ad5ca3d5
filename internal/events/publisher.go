package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blitzfilter/item/internal/db"
	"github.com/blitzfilter/item/internal/model"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "blitzfilter.items"
	exchangeType = "topic"

	// Event types
	EventTypeItemChanged = "item.changed"

	eventVersion = "1.0.0"

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second

	// confirmations of every attempt of one publish fit without blocking the connection
	confirmBuffer = 4 * maxRetries
)

var (
	errNotAcknowledged = errors.New("event not acknowledged")
	errConfirmTimeout  = errors.New("confirmation timeout")
)

type channel interface {
	GetNextPublishSeqNo() uint64
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes item change notifications to RabbitMQ
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  channel
	confirms <-chan amqp.Confirmation
	log      *zap.Logger
	backoff  time.Duration
	timeout  time.Duration
}

// Event is the envelope of every published message
type Event struct {
	EventID       string      `json:"event_id"`
	EventType     string      `json:"event_type"`
	EventVersion  string      `json:"event_version"`
	Timestamp     string      `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       ItemChanged `json:"payload"`
}

// ItemChanged describes a commercially material change of an item
type ItemChanged struct {
	ItemID  string           `json:"item_id"`
	EventID string           `json:"event_id,omitempty"`
	Hash    string           `json:"hash"`
	State   *model.ItemState `json:"state,omitempty"`
	Price   *float32         `json:"price,omitempty"`
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id that is copied into published events
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// NewItemChangedEvent builds the message announcing ev
func NewItemChangedEvent(ctx context.Context, ev db.ItemEvent) Event {
	event := Event{
		EventID:      uuid.New().String(),
		EventType:    EventTypeItemChanged,
		EventVersion: eventVersion,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Payload: ItemChanged{
			ItemID: ev.ItemID,
			Hash:   ev.Hash,
			State:  ev.State,
			Price:  ev.Price,
		},
	}
	if ev.EventID != nil {
		event.Payload.EventID = *ev.EventID
	}

	if corrID, ok := ctx.Value(correlationKey{}).(string); ok {
		event.CorrelationID = corrID
	}

	return event
}

// NewPublisher connects to RabbitMQ and declares the items exchange
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	if err := ch.ExchangeDeclare(
		ExchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	log.Info("Connected to RabbitMQ", zap.String("exchange", ExchangeName))

	p := newPublisher(ch, confirms, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, confirms <-chan amqp.Confirmation, log *zap.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		confirms: confirms,
		log:      log,
		backoff:  initialBackoff,
		timeout:  confirmTimeout,
	}
}

// PublishItemChanged announces that the newest event of an item changed its hash
func (p *Publisher) PublishItemChanged(ctx context.Context, ev db.ItemEvent) error {
	return p.publishWithRetry(ctx, EventTypeItemChanged, NewItemChangedEvent(ctx, ev))
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *Publisher) publishWithRetry(ctx context.Context, routingKey string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// confirms arrive in publish order on a single channel
	p.mu.Lock()
	defer p.mu.Unlock()

	backoff := p.backoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		tag := p.channel.GetNextPublishSeqNo()
		err := p.channel.PublishWithContext(
			ctx,
			ExchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				Timestamp:     time.Now(),
				MessageId:     event.EventID,
				CorrelationId: event.CorrelationID,
				Body:          body,
				Headers: amqp.Table{
					"event_type":    event.EventType,
					"event_version": event.EventVersion,
				},
			},
		)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		lastErr = p.awaitConfirm(ctx, tag)
		if lastErr == nil {
			p.log.Info("Event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("item_id", event.Payload.ItemID),
				zap.String("routing_key", routingKey),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("item_id", event.Payload.ItemID),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// awaitConfirm waits for the confirmation of the publishing with delivery tag.
// Late confirmations of earlier publishings are discarded.
func (p *Publisher) awaitConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return amqp.ErrClosed
			}
			if confirm.DeliveryTag < tag {
				p.log.Debug("Discarding stale confirmation", zap.Uint64("delivery_tag", confirm.DeliveryTag), zap.Uint64("awaiting", tag))
				continue
			}
			if !confirm.Ack {
				return errNotAcknowledged
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errConfirmTimeout
		}
	}
}

// IsHealthy checks if the publisher connection is healthy
func (p *Publisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}
