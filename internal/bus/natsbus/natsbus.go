// Package natsbus implements the event bus on a NATS topic exchange.
// Routing keys are dot-segmented and map directly onto NATS subjects, so
// binding patterns use the native "*" and ">" wildcards.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Config contains NATS connection configuration.
type Config struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	MaxReconnects  int
	Prefetch       int
}

type envelope struct {
	EventID     string          `json:"event_id"`
	PublishedAt time.Time       `json:"published_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Bus is the NATS-backed event bus.
type Bus struct {
	conn     *nats.Conn
	prefetch int
}

// Connect dials NATS with reconnect handling and returns the bus.
func Connect(cfg Config) (*Bus, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	slog.Info("connected to nats", "url", conn.ConnectedUrl())
	return &Bus{conn: conn, prefetch: cfg.Prefetch}, nil
}

// Publish encodes payload as JSON, wraps it in the event envelope and
// publishes it on the subject equal to the routing key.
func (b *Bus) Publish(ctx context.Context, routingKey string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", routingKey, err)
	}

	env := envelope{
		EventID:     uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Payload:     raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", routingKey, err)
	}

	if err := b.conn.Publish(routingKey, body); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	bus.RecordPublished(routingKey)
	return nil
}

type subscription struct {
	subs []*nats.Subscription
}

// Subscribe joins the queue group on every binding pattern. NATS invokes
// the callback sequentially per subscription, which preserves per-queue
// order; pending limits bound the in-flight buffer.
func (b *Bus) Subscribe(ctx context.Context, queue string, bindings []string, h bus.Handler) (bus.Subscription, error) {
	if b.conn.IsClosed() {
		return nil, bus.ErrBusClosed
	}

	cb := func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			slog.Error("dropping malformed event",
				"queue", queue,
				"subject", msg.Subject,
				"error", err,
			)
			bus.RecordDelivered(queue, "malformed")
			return
		}

		d := bus.Delivery{
			EventID:    env.EventID,
			RoutingKey: msg.Subject,
			Body:       env.Payload,
		}
		if err := h(ctx, d); err != nil {
			// no requeue: retries live in the orchestrator
			slog.Error("handler failed, message dropped",
				"queue", queue,
				"routing_key", msg.Subject,
				"error", err,
			)
			bus.RecordDelivered(queue, "dropped")
			return
		}
		bus.RecordDelivered(queue, "ok")
	}

	out := &subscription{}
	for _, binding := range bindings {
		sub, err := b.conn.QueueSubscribe(binding, queue, cb)
		if err != nil {
			_ = out.Unsubscribe()
			return nil, fmt.Errorf("subscribe %s on %s: %w", queue, binding, err)
		}
		if err := sub.SetPendingLimits(b.prefetch, -1); err != nil {
			_ = out.Unsubscribe()
			return nil, fmt.Errorf("set pending limits for %s: %w", queue, err)
		}
		out.subs = append(out.subs, sub)
	}

	slog.Info("subscribed", "queue", queue, "bindings", bindings)
	return out, nil
}

// Close drains in-flight messages and closes the connection.
func (b *Bus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

// Unsubscribe removes every binding subscription of the queue.
func (s *subscription) Unsubscribe() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
