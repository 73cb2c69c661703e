// Package notify publishes release lifecycle events to NATS JetStream so
// external consumers (chat bridges, dashboards) can react to builds without
// polling the event store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/relbuilder/internal/eventstore"
)

const publishTimeout = 5 * time.Second

// Message is the wire form of a release event.
type Message struct {
	ReleaseID string               `json:"release_id"`
	Type      eventstore.EventType `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Payload   any                  `json:"payload,omitempty"`
}

// Publisher sends release events to a JetStream subject.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewPublisher connects to NATS and sets up the JetStream context.
func NewPublisher(url, subject string) (*Publisher, error) {
	if url == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("NATS subject is required")
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS publisher initialized", "url", url, "subject", subject)

	return &Publisher{conn: conn, js: js, subject: subject}, nil
}

// Emit implements release.Sink by publishing the event to the configured
// subject. A short timeout bounds each publish so a slow broker cannot stall
// a release.
func (p *Publisher) Emit(ctx context.Context, releaseID string, eventType eventstore.EventType, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := Message{
		ReleaseID: releaseID,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published release event",
		"release_id", releaseID,
		"type", string(eventType))
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
