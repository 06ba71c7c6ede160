package response

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
)

// ConsumerBindings are the routing keys the response consumer subscribes to.
var ConsumerBindings = []string{domain.TopicTriageCompleted}

// dedupSize bounds the recently-seen event id cache.
const dedupSize = 4096

// Service is the bus-facing front of the orchestrator. It drops redelivered
// event ids and runs each workflow on its own goroutine so slow containment
// of one incident never blocks verdicts for others.
type Service struct {
	orchestrator *Orchestrator
	validator    *bus.PayloadValidator
	seen         *lru.Cache[string, struct{}]
	wg           sync.WaitGroup
}

// NewService creates the response consumer service.
func NewService(orchestrator *Orchestrator, validator *bus.PayloadValidator) (*Service, error) {
	seen, err := lru.New[string, struct{}](dedupSize)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &Service{
		orchestrator: orchestrator,
		validator:    validator,
		seen:         seen,
	}, nil
}

// HandleTriageCompleted consumes one verdict and triggers the workflow.
// The orchestrator's persisted-state check makes this idempotent even when
// a duplicate slips past the LRU.
func (s *Service) HandleTriageCompleted(ctx context.Context, d bus.Delivery) error {
	if err := s.validator.Validate(d.RoutingKey, d.Body); err != nil {
		return err
	}

	var payload domain.TriageCompletedPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return fmt.Errorf("%w: %s", bus.ErrMalformedEvent, err)
	}

	if d.EventID != "" {
		if _, dup := s.seen.Get(d.EventID); dup {
			ctxlog.FromContext(ctx).Debug("duplicate event dropped",
				"event_id", d.EventID,
				"incident_id", payload.IncidentID,
			)
			return nil
		}
		s.seen.Add(d.EventID, struct{}{})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.orchestrator.Execute(ctx, payload); err != nil {
			ctxlog.FromContext(ctx).Error("response workflow failed",
				"incident_id", payload.IncidentID,
				"error", err,
			)
		}
	}()

	return nil
}

// Wait blocks until all in-flight workflows have returned. Called during
// shutdown after the bus subscriptions are stopped.
func (s *Service) Wait() {
	s.wg.Wait()
}
