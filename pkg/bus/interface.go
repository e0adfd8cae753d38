// Package bus fans dispatcher events out to in-process and remote subscribers.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"twitchbot/pkg/chat"
)

// Topic names a stream of events.
type Topic string

const (
	// TopicMessageReceived carries every inbound message before dispatch.
	TopicMessageReceived Topic = "message.received"
	// TopicCommandResult carries the outcome of each handler run.
	TopicCommandResult Topic = "command.result"
)

// Event is one notification flowing through the bus.
type Event struct {
	ID        string        `json:"id"`
	Topic     Topic         `json:"topic"`
	Message   *chat.Message `json:"message,omitempty"`
	Command   string        `json:"command,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(topic Topic, msg *chat.Message) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

// Handler is a function that processes events.
type Handler func(ctx context.Context, ev *Event) error

// Bus is the interface for event routing.
type Bus interface {
	// Start starts the bus.
	Start() error

	// Stop stops the bus.
	Stop() error

	// RegisterHandler registers a handler for a topic.
	RegisterHandler(topic Topic, handler Handler)

	// UnregisterHandlers removes all handlers for a topic.
	UnregisterHandlers(topic Topic)

	// Publish delivers an event to the handlers of its topic.
	Publish(ev *Event) error

	// GetMetrics returns current bus metrics.
	GetMetrics() map[string]uint64
}
