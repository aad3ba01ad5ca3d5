package events

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/blitzfilter/item/internal/model"
	"github.com/blitzfilter/item/internal/repo"
	"github.com/blitzfilter/item/internal/service"
	"github.com/blitzfilter/item/internal/transcode"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAcknowledger struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *recordingAcknowledger) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *recordingAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *recordingAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

type stubIngester struct {
	err      error
	received []model.Item
	corrID   string
}

func (s *stubIngester) Ingest(ctx context.Context, item model.Item) (service.IngestResult, error) {
	s.received = append(s.received, item)
	s.corrID, _ = ctx.Value(correlationKey{}).(string)
	return service.IngestResult{}, s.err
}

func deliver(t *testing.T, ingester Ingester, body string) *recordingAcknowledger {
	t.Helper()
	ack := &recordingAcknowledger{}
	c := &Consumer{serviceName: "itemd", ingester: ingester, log: zap.NewNop()}
	c.handleMessage(context.Background(), amqp.Delivery{
		Acknowledger:  ack,
		Body:          []byte(body),
		CorrelationId: "scrape-7",
		RoutingKey:    RoutingKeyItemScraped,
	})
	return ack
}

func TestConsumerIngestsScrapedItem(t *testing.T) {
	ingester := &stubIngester{}

	ack := deliver(t, ingester, `{"itemId": "42", "sourceId": "shop", "state": "SOLD"}`)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	require.Len(t, ingester.received, 1)
	assert.Equal(t, "42", ingester.received[0].ItemID)
	assert.Equal(t, model.Sold, *ingester.received[0].State)
	assert.Equal(t, "scrape-7", ingester.corrID)
}

func TestConsumerDropsMalformedMessage(t *testing.T) {
	ingester := &stubIngester{}

	ack := deliver(t, ingester, `{"itemId": `)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.Empty(t, ingester.received)
}

func TestConsumerRequeueDecision(t *testing.T) {
	cases := []struct {
		err     error
		requeue bool
	}{
		{fmt.Errorf("%w: sourceId", transcode.ErrMissingRequiredField), false},
		{transcode.ErrInvalidSegment, false},
		{repo.ErrEventAlreadyExists, false},
		{errors.New("database is gone"), true},
	}

	for _, tc := range cases {
		ack := deliver(t, &stubIngester{err: tc.err}, `{"itemId": "42", "sourceId": "shop"}`)

		assert.True(t, ack.nacked, tc.err.Error())
		assert.Equal(t, tc.requeue, ack.requeued, tc.err.Error())
	}
}
