package events

import (
	"context"
	"time"
)

// Event is the envelope broadcast between service instances.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewEvent stamps an event with the current unix time.
func NewEvent(eventType string, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().Unix()}
}

type Handler func(ctx context.Context, event Event) error

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) error
}

type Broker interface {
	Publisher
	Subscriber
}
