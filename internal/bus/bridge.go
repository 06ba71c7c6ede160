package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBridgeBuffer is the bounded queue size used when the config does
// not override it.
const DefaultBridgeBuffer = 256

// Bridge marshals events from blocking consumer goroutines into a service's
// single dispatch goroutine through one bounded queue.
//
// Invariants: FIFO order is preserved per bridge instance; consumer
// goroutines only touch the queue, never dispatcher state; when the queue is
// full Enqueue blocks the consumer, pushing backpressure toward the bus
// instead of dropping events.
type Bridge struct {
	service string
	buf     chan Delivery
	handler Handler

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBridge creates a bridge for the named service. size <= 0 falls back to
// DefaultBridgeBuffer.
func NewBridge(service string, size int, h Handler) *Bridge {
	if size <= 0 {
		size = DefaultBridgeBuffer
	}
	return &Bridge{
		service: service,
		buf:     make(chan Delivery, size),
		handler: h,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the dispatch goroutine. Events are handed to the handler
// strictly in enqueue order.
func (b *Bridge) Start(ctx context.Context) {
	go b.dispatch(ctx)
}

// Enqueue hands an event from the consumer context to the dispatch loop.
// Blocks while the queue is full; fails only on shutdown or context
// cancellation.
func (b *Bridge) Enqueue(ctx context.Context, d Delivery) error {
	// once Stop has run, the drain loop may already be gone; winning the
	// buffered send below would lose the event silently
	select {
	case <-b.stopCh:
		return ErrBusClosed
	default:
	}

	start := time.Now()
	select {
	case b.buf <- d:
		if blocked := time.Since(start); blocked > time.Millisecond {
			recordBridgeBlocked(b.service, blocked)
		}
		recordBridgeDepth(b.service, len(b.buf))
		return nil
	case <-b.stopCh:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains buffered events through the handler, then stops the dispatch
// loop. Enqueue calls made after Stop fail with ErrBusClosed.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
	slog.Info("delivery bridge stopped", "service", b.service)
}

func (b *Bridge) dispatch(ctx context.Context) {
	defer close(b.doneCh)

	for {
		select {
		case d := <-b.buf:
			b.deliver(ctx, d)
		case <-b.stopCh:
			// drain what the consumers already enqueued
			for {
				select {
				case d := <-b.buf:
					b.deliver(ctx, d)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, d Delivery) {
	recordBridgeDepth(b.service, len(b.buf))
	if err := b.handler(ctx, d); err != nil {
		slog.Error("bridge handler failed, event dropped",
			"service", b.service,
			"routing_key", d.RoutingKey,
			"event_id", d.EventID,
			"error", err,
		)
	}
}
