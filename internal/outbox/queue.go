package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"example.com/enrollment/internal/events"
)

// ErrQueueFull is returned when the outbox buffer cannot accept another event.
var ErrQueueFull = errors.New("outbox queue full")

// Message is a serialized event waiting for delivery.
type Message struct {
	EventID       string
	EventType     string
	Key           string
	Topic         string
	SchemaSubject string
	Payload       json.RawMessage
}

// Queue buffers enrollment events in memory until the Dispatcher forwards them.
type Queue struct {
	topic string
	ch    chan Message
}

// NewQueue creates a Queue holding at most size pending messages for topic.
func NewQueue(topic string, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{topic: topic, ch: make(chan Message, size)}
}

// Publish serializes env and enqueues it without blocking.
func (q *Queue) Publish(_ context.Context, env events.Envelope) error {
	meta, ok := schemaCatalog[env.Type]
	if !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", env.Type)
	}
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", env.Type, err)
	}

	msg := Message{
		EventID:       env.ID,
		EventType:     env.Type,
		Key:           env.Key,
		Topic:         q.topic,
		SchemaSubject: meta.Subject,
		Payload:       payload,
	}

	select {
	case q.ch <- msg:
		queueDepth.Set(float64(len(q.ch)))
		return nil
	default:
		droppedCounter.Inc()
		return ErrQueueFull
	}
}

// Len reports how many messages are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}
