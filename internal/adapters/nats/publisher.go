package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// Subjects carrying itinerary events.
const (
	SubjectSuggestionApplied = "itinerary.suggestion.applied" // .<day>
	SubjectRepairRequested   = "itinerary.repair.requested"
	SubjectRepairCompleted   = "itinerary.repair.completed"

	// SubjectAll matches every itinerary event; used by the websocket relay.
	SubjectAll = "itinerary.>"
)

// Streams returns the JetStream streams the itinerary events live in.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      "ITINERARY_EVENTS",
			Subjects:  []string{"itinerary.suggestion.>", SubjectRepairCompleted},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "ITINERARY_REPAIRS",
			Subjects:  []string{SubjectRepairRequested},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and makes sure the streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(msgID))
	return err
}

func (p *Publisher) PublishSuggestionApplied(ctx context.Context, event *domain.SuggestionApplied) error {
	return p.publish(ctx, SubjectSuggestionApplied+"."+strconv.Itoa(event.Day), event.EventID, event)
}

func (p *Publisher) PublishRepairRequested(ctx context.Context, event *domain.RepairRequested) error {
	return p.publish(ctx, SubjectRepairRequested, event.EventID, event)
}

func (p *Publisher) PublishItineraryRepaired(ctx context.Context, event *domain.ItineraryRepaired) error {
	return p.publish(ctx, SubjectRepairCompleted, event.EventID, event)
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection (e.g. for the WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("tripgaps"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
