// Package events publishes engine lifecycle events to an external bus.
// Downstream consumers (dashboards, correlation pipelines) subscribe to
// playbook start/completion without coupling to the engine.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType identifies the lifecycle event being published.
type EventType string

const (
	// EventPlaybookStarted is published when an execution begins.
	EventPlaybookStarted EventType = "playbook_started"
	// EventPlaybookCompleted is published when an execution finishes,
	// whatever its final status.
	EventPlaybookCompleted EventType = "playbook_completed"
)

// Event is the wire payload consumed by the external event bus.
type Event struct {
	Type        EventType `json:"type"`
	IncidentID  string    `json:"incident_id"`
	PlaybookID  string    `json:"playbook_id"`
	ExecutionID string    `json:"execution_id"`
	Success     bool      `json:"success"`
	ActionCount int       `json:"action_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// Bus publishes engine events. Publishing is best-effort: the engine
// logs failures but never fails an execution because the bus is down.
type Bus interface {
	Publish(ctx context.Context, event Event) error
}

// NopBus discards all events. It is the default when no bus is configured.
type NopBus struct{}

// Publish implements Bus.
func (NopBus) Publish(context.Context, Event) error { return nil }

// RedisBus publishes events as JSON to a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.SugaredLogger
}

// NewRedisBus creates a bus publishing to the given channel.
func NewRedisBus(addr, password string, db int, channel string, logger *zap.SugaredLogger) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Ping tests the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warnf("Failed to publish %s event for execution %s: %v", event.Type, event.ExecutionID, err)
		return err
	}
	return nil
}
