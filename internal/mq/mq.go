package mq

import (
	"context"
	"encoding/json"

	"github.com/blue-carbon-registry/apiserver/types"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// EventBus publishes registry lifecycle events to a single channel and
// lets workers consume them.
type EventBus struct {
	backend Backend
	channel string
}

// NewEventBus wraps a backend with the configured channel.
func NewEventBus(backend Backend, channel string) *EventBus {
	return &EventBus{backend: backend, channel: channel}
}

// PublishEvent serializes the event as JSON and publishes it. The event
// kind travels as a message attribute so consumers can filter without
// decoding.
func (b *EventBus) PublishEvent(ctx context.Context, event types.Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return b.backend.Publish(ctx, b.channel, data, map[string]string{"kind": event.Kind})
}

// Subscribe consumes events from the configured channel.
func (b *EventBus) Subscribe(ctx context.Context, handler Handler) error {
	return b.backend.Subscribe(ctx, b.channel, handler)
}

// Close closes the underlying backend.
func (b *EventBus) Close() error {
	return b.backend.Close()
}
