// Package memory keeps analysis-completed events in process, encoded exactly
// as the Pub/Sub publisher would send them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pubsubpublisher "github.com/JakeFAU/cookie-crawler/internal/publisher/pubsub"
)

// Event is one recorded publish.
type Event struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode event %s: %w", e.ID, err)
	}
	return nil
}

// Publisher records events instead of sending them.
type Publisher struct {
	mu     sync.Mutex
	events []Event
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload and records it under a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	msg, err := pubsubpublisher.NewMessage(topic, payload)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.events)+1)
	p.events = append(p.events, Event{ID: id, Topic: topic, Data: msg.Data, Attributes: msg.Attributes})
	return id, nil
}

// Events returns a snapshot of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
