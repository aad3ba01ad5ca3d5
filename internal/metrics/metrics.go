package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of an ingested event
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
)

// Metrics holds the collectors of the item service
type Metrics struct {
	EventsIngested   *prometheus.CounterVec
	Materializations prometheus.Counter
	EventsFolded     prometheus.Histogram
	PublishFailures  prometheus.Counter
	DecodeFailures   prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blitzfilter",
			Subsystem: "items",
			Name:      "events_ingested_total",
			Help:      "Ingested item events by outcome.",
		}, []string{"outcome"}),
		Materializations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitzfilter",
			Subsystem: "items",
			Name:      "materializations_total",
			Help:      "Items materialized from their event history.",
		}),
		EventsFolded: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blitzfilter",
			Subsystem: "items",
			Name:      "events_folded",
			Help:      "Number of events folded per materialization.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitzfilter",
			Subsystem: "items",
			Name:      "publish_failures_total",
			Help:      "Change notifications that could not be published.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitzfilter",
			Subsystem: "items",
			Name:      "decode_failures_total",
			Help:      "Stored records that failed to decode.",
		}),
	}

	reg.MustRegister(
		m.EventsIngested,
		m.Materializations,
		m.EventsFolded,
		m.PublishFailures,
		m.DecodeFailures,
	)

	return m
}

// RegisterStoredEvents exposes the number of stored events, counted on every scrape
func RegisterStoredEvents(reg prometheus.Registerer, count func(ctx context.Context) (int64, error)) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "blitzfilter",
		Subsystem: "items",
		Name:      "stored_events",
		Help:      "Events currently stored in the items table.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		n, err := count(ctx)
		if err != nil {
			return 0
		}
		return float64(n)
	}))
}
