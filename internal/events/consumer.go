package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blitzfilter/item/internal/model"
	"github.com/blitzfilter/item/internal/repo"
	"github.com/blitzfilter/item/internal/service"
	"github.com/blitzfilter/item/internal/transcode"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RoutingKeyItemScraped is the routing key scrapers publish item snapshots with
const RoutingKeyItemScraped = "item.scraped"

// Ingester stores one API item as an event
type Ingester interface {
	Ingest(ctx context.Context, item model.Item) (service.IngestResult, error)
}

// Consumer feeds scraped items from RabbitMQ into the item service
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	serviceName string
	ingester    Ingester
	log         *zap.Logger
}

// NewConsumer connects to RabbitMQ and declares the items exchange
func NewConsumer(url, serviceName string, ingester Ingester, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, exchangeType, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("Consumer connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return &Consumer{
		conn:        conn,
		channel:     ch,
		serviceName: serviceName,
		ingester:    ingester,
		log:         log,
	}, nil
}

// Start consumes scraped items until ctx is done or the channel closes
func (c *Consumer) Start(ctx context.Context) error {
	queueName := fmt.Sprintf("%s.ingest.queue", c.serviceName)

	queue, err := c.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(queue.Name, RoutingKeyItemScraped, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to %s: %w", RoutingKeyItemScraped, err)
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		c.serviceName, // consumer tag
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("Listening for events", zap.String("queue", queue.Name), zap.String("routing_key", RoutingKeyItemScraped))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage ingests one delivery. Messages that can never succeed are
// dropped; everything else is requeued.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var item model.Item
	if err := json.Unmarshal(msg.Body, &item); err != nil {
		c.log.Warn("Failed to unmarshal scraped item", zap.String("message_id", msg.MessageId), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if msg.CorrelationId != "" {
		ctx = WithCorrelationID(ctx, msg.CorrelationId)
	}

	res, err := c.ingester.Ingest(ctx, item)
	if err != nil {
		if permanent(err) {
			c.log.Warn("Dropping scraped item", zap.String("item_id", item.ItemID), zap.Error(err))
			_ = msg.Nack(false, false)
			return
		}
		c.log.Error("Failed to ingest scraped item", zap.String("item_id", item.ItemID), zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}

	c.log.Debug("Scraped item ingested", zap.String("item_id", res.Event.ItemID), zap.Bool("changed", res.Changed))
	_ = msg.Ack(false)
}

func permanent(err error) bool {
	return errors.Is(err, transcode.ErrMissingRequiredField) ||
		errors.Is(err, transcode.ErrInvalidSegment) ||
		errors.Is(err, repo.ErrEventAlreadyExists)
}

// Close closes the consumer channel and connection
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
