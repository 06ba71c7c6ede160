// Package membus provides an in-process implementation of the event bus
// used by unit tests and single-node deployments.
package membus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/google/uuid"
)

// Bus is an in-memory topic exchange. Each subscription owns a bounded
// queue and a single worker goroutine, so delivery is FIFO per queue and
// publishers block when a queue is full.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscription
	queueSize int
	closed    bool
	wg        sync.WaitGroup
}

type subscription struct {
	owner    *Bus
	queue    string
	bindings []string
	ch       chan bus.Delivery
	stopCh   chan struct{}
}

// New creates a bus whose per-queue buffers hold queueSize events.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Bus{
		subs:      make(map[string]*subscription),
		queueSize: queueSize,
	}
}

// Publish encodes payload as JSON and fans it out to every queue with a
// matching binding.
func (b *Bus) Publish(_ context.Context, routingKey string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", routingKey, err)
	}

	d := bus.Delivery{
		EventID:    uuid.NewString(),
		RoutingKey: routingKey,
		Body:       raw,
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return bus.ErrBusClosed
	}
	var targets []*subscription
	for _, sub := range b.subs {
		if sub.matches(routingKey) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- d:
		case <-sub.stopCh:
		}
	}

	bus.RecordPublished(routingKey)
	return nil
}

// Subscribe declares a queue bound to the given patterns. Delivery runs on a
// single goroutine per queue; a handler error drops the message.
func (b *Bus) Subscribe(ctx context.Context, queue string, bindings []string, h bus.Handler) (bus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, bus.ErrBusClosed
	}
	if _, exists := b.subs[queue]; exists {
		return nil, fmt.Errorf("queue %q already subscribed", queue)
	}

	sub := &subscription{
		owner:    b,
		queue:    queue,
		bindings: bindings,
		ch:       make(chan bus.Delivery, b.queueSize),
		stopCh:   make(chan struct{}),
	}
	b.subs[queue] = sub

	b.wg.Add(1)
	go sub.consume(ctx, h)

	return sub, nil
}

// Close stops all subscriptions and waits for their workers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	b.wg.Wait()
	return nil
}

func (s *subscription) matches(routingKey string) bool {
	for _, pattern := range s.bindings {
		if bus.MatchTopic(pattern, routingKey) {
			return true
		}
	}
	return false
}

func (s *subscription) consume(ctx context.Context, h bus.Handler) {
	defer s.owner.wg.Done()

	for {
		select {
		case d := <-s.ch:
			if err := h(ctx, d); err != nil {
				slog.Error("handler failed, message dropped",
					"queue", s.queue,
					"routing_key", d.RoutingKey,
					"error", err,
				)
				bus.RecordDelivered(s.queue, "dropped")
				continue
			}
			bus.RecordDelivered(s.queue, "ok")
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Unsubscribe removes the queue from the exchange and stops its worker.
func (s *subscription) Unsubscribe() error {
	s.owner.mu.Lock()
	delete(s.owner.subs, s.queue)
	s.owner.mu.Unlock()
	s.stop()
	return nil
}
