package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPublisherUnhealthy is returned when the message broker connection is down
	ErrPublisherUnhealthy = errors.New("rabbitmq connection failed")
)

// Pinger is a dependency that can be probed for liveness
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter reports the broker connection state
type HealthReporter interface {
	IsHealthy() bool
}

// HealthChecker probes the database and the broker
type HealthChecker struct {
	db        Pinger
	publisher HealthReporter
}

// NewHealthChecker creates a health checker over the given dependencies
func NewHealthChecker(database Pinger, publisher HealthReporter) *HealthChecker {
	return &HealthChecker{db: database, publisher: publisher}
}

// Check returns nil when every dependency is reachable
func (h *HealthChecker) Check(ctx context.Context) error {
	if err := h.db.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if !h.publisher.IsHealthy() {
		return ErrPublisherUnhealthy
	}
	return nil
}
