package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/config"
	"github.com/craftlink/sentinel/pkg/logger"
)

// Event is the JSON envelope carried on every subject.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes a single event. A returned error is logged; delivery is
// at-most-once and the platform retries by re-emitting the trigger.
type Handler func(ctx context.Context, event *Event) error

// Bus is a NATS-backed event bus. Subscriptions use queue groups so only one
// engine instance handles each trigger.
type Bus struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// Connect establishes the NATS connection with reconnect handling.
func Connect(cfg *config.NATSConfig) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait) * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("eventbus: nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("eventbus: nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("eventbus: nats error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("eventbus: connected", zap.String("url", conn.ConnectedUrl()))
	return &Bus{conn: conn}, nil
}

// Publish marshals the payload into an event envelope and publishes it.
func (b *Bus) Publish(ctx context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	event := &Event{
		ID:        uuid.New().String(),
		Type:      subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	if err := b.conn.Publish(subject, raw); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a queue-group handler for a subject.
func (b *Bus) Subscribe(ctx context.Context, subject, queue string, handler Handler) error {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		var event Event
		if err := json.Unmarshal(m.Data, &event); err != nil {
			logger.Error("eventbus: malformed event",
				zap.String("subject", m.Subject),
				zap.Error(err),
			)
			return
		}

		if err := handler(ctx, &event); err != nil {
			logger.Error("eventbus: handler failed",
				zap.String("subject", m.Subject),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	b.subs = append(b.subs, sub)
	return nil
}

// Conn exposes the underlying connection for health probes.
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}

// Ping reports NATS connectivity for health checks.
func (b *Bus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions and closes the connection.
func (b *Bus) Close() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.conn.Close()
}
