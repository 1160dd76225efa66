package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	TopicAuditRecorded = "audit.recorded"
)

var ErrBusClosed = errors.New("event bus closed")

type Event struct {
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

type Handler func(ctx context.Context, event Event)

// Bus is a publish/subscribe channel between components. Each instance is
// independent; nothing is shared process-wide.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	// Subscribe registers h for topic and returns a function that removes it.
	Subscribe(topic string, h Handler) (unsubscribe func())
	Close() error
}

func newEvent(topic string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Topic:      topic,
		Payload:    data,
		OccurredAt: time.Now().UTC(),
	}, nil
}
