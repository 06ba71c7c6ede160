// Package bus defines the topic-based event bus contract shared by all
// services, plus the delivery bridge that hands consumed events over to a
// service's dispatch loop.
package bus

import (
	"context"
	"errors"
	"strings"
)

// Bus errors.
var (
	// ErrMalformedEvent marks an undecodable or schema-violating message
	// body. Such messages are dropped and logged, never retried.
	ErrMalformedEvent = errors.New("malformed event body")

	ErrBusClosed = errors.New("event bus closed")
)

// Handler processes one delivered event. Returning an error drops the
// message without requeue: retry semantics belong to the orchestrator, not
// the bus, so external side effects are never executed twice by redelivery.
type Handler func(ctx context.Context, ev Delivery) error

// Delivery is an event as seen by a consumer.
type Delivery struct {
	EventID    string
	RoutingKey string
	Body       []byte
}

// Publisher enqueues messages on the durable topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Subscriber declares a durable queue bound to one or more routing-key
// patterns and delivers matching messages to the handler with at-least-once
// semantics and bounded in-flight concurrency.
type Subscriber interface {
	Subscribe(ctx context.Context, queue string, bindings []string, h Handler) (Subscription, error)
}

// Subscription is an active queue consumer.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the full pub/sub contract.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// MatchTopic reports whether a dot-segmented routing key matches a binding
// pattern. "*" matches exactly one segment; ">" matches one or more
// trailing segments.
func MatchTopic(pattern, key string) bool {
	if pattern == key {
		return true
	}

	pSegs := strings.Split(pattern, ".")
	kSegs := strings.Split(key, ".")

	for i, p := range pSegs {
		if p == ">" {
			// must cover at least one remaining segment
			return i < len(kSegs)
		}
		if i >= len(kSegs) {
			return false
		}
		if p != "*" && p != kSegs[i] {
			return false
		}
	}

	return len(pSegs) == len(kSegs)
}
