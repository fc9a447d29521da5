package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	subs   []*nats.Subscription
	logger *slog.Logger
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{conn: conn, js: js, logger: logger}, nil
}

// SubscribeRepairRequests delivers each repair request to handler. Requests
// whose handler fails are redelivered up to three times.
func (s *Subscriber) SubscribeRepairRequests(ctx context.Context, handler func(ctx context.Context, event *domain.RepairRequested) error) error {
	sub, err := s.js.Subscribe(SubjectRepairRequested, func(msg *nats.Msg) {
		var event domain.RepairRequested
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Warn("dropping malformed repair request", slog.Any("error", err))
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			s.logger.Warn("repair request failed",
				slog.String("itinerary_id", event.ItineraryID),
				slog.Any("error", err),
			)
			_ = msg.NakWithDelay(5 * time.Second)
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("repair-processor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.AckWait(2*time.Minute),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
