package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
)

// Consumer mirrors security-relevant bus traffic into the ledger, so the
// timeline also covers events emitted by services that do not write audit
// entries themselves.
type Consumer struct {
	ledger    *Ledger
	validator *bus.PayloadValidator
}

// Bindings every audit consumer queue subscribes with.
var ConsumerBindings = []string{"response.>", "security.>", "triage.completed", "alert.raised"}

// NewConsumer creates the audit event consumer.
func NewConsumer(ledger *Ledger, validator *bus.PayloadValidator) *Consumer {
	return &Consumer{ledger: ledger, validator: validator}
}

// HandleEvent records one observed bus event. Malformed bodies are dropped
// with an error so the bus counts them; they are never retried.
func (c *Consumer) HandleEvent(ctx context.Context, d bus.Delivery) error {
	if err := c.validator.Validate(d.RoutingKey, d.Body); err != nil {
		return err
	}

	var payload map[string]any
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return fmt.Errorf("%w: %s", bus.ErrMalformedEvent, err)
	}

	target, _ := payload["incident_id"].(string)
	if target == "" {
		// alert.raised carries the incident id as its target
		target, _ = payload["target"].(string)
	}
	if target == "" {
		target = "unknown"
	}

	logID, err := c.ledger.Append(ctx, AppendInput{
		Actor:        "event_bus",
		Action:       d.RoutingKey,
		Target:       target,
		ResourceType: "event",
		Status:       "observed",
		Details:      payload,
	})
	if err != nil {
		return fmt.Errorf("record bus event %s: %w", d.RoutingKey, err)
	}

	ctxlog.FromContext(ctx).Debug("recorded bus event",
		"routing_key", d.RoutingKey,
		"target", target,
		"log_id", logID,
	)
	return nil
}
