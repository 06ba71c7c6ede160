// Package quarantine applies confidence-gated network containment to triage
// verdicts: high-confidence verdicts place an IP block immediately, mid-band
// verdicts only recommend one, and everything below goes to an analyst.
package quarantine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/decision"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
)

// ConsumerBindings are the routing keys the quarantine consumer subscribes to.
var ConsumerBindings = []string{domain.TopicTriageCompleted}

// Service is the quarantine policy engine and block store front.
type Service struct {
	repo      Repository
	publisher bus.Publisher
	validator *bus.PayloadValidator
	now       func() time.Time
}

// NewService creates a quarantine service.
func NewService(repo Repository, publisher bus.Publisher, validator *bus.PayloadValidator) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		validator: validator,
		now:       time.Now,
	}
}

// HandleTriageCompleted consumes one triage verdict and applies the
// confidence bands. Only the auto-quarantine band writes to the store; the
// lower bands emit recommendation events and leave the network untouched.
func (s *Service) HandleTriageCompleted(ctx context.Context, d bus.Delivery) error {
	if err := s.validator.Validate(d.RoutingKey, d.Body); err != nil {
		return err
	}

	var payload domain.TriageCompletedPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return fmt.Errorf("%w: %s", bus.ErrMalformedEvent, err)
	}

	log := ctxlog.FromContext(ctx).With(
		"incident_id", payload.IncidentID,
		"threat_score", payload.TriageResult.ThreatScore,
	)

	mode := decision.ResponseModeFor(payload.TriageResult.ThreatScore)
	recordVerdictHandled(string(mode))

	action := domain.SecurityActionPayload{
		IncidentID: payload.IncidentID,
		IPAddress:  payload.SourceIP,
		Confidence: payload.TriageResult.Confidence,
	}

	switch mode {
	case decision.ResponseModeAutoQuarantine:
		if payload.SourceIP == "" {
			// nothing to block; hand the verdict to an analyst instead
			log.Warn("auto-quarantine verdict without source ip, routing to analyst")
			action.Action = "no_source_ip"
			return s.publish(ctx, domain.TopicAnalystDecisionRequired, action)
		}

		record, err := s.Quarantine(ctx, payload.SourceIP, payload.AttackType,
			payload.TriageResult.ThreatLevel, payload.IncidentID)
		if err != nil {
			return fmt.Errorf("place quarantine for %s: %w", payload.SourceIP, err)
		}

		log.Info("auto-quarantine placed",
			"ip", record.IPAddress,
			"threat_level", record.ThreatLevel,
			"expires_at", record.ExpiresAt,
		)
		action.Action = "auto_quarantine"
		return s.publish(ctx, domain.TopicAutoQuarantine, action)

	case decision.ResponseModeAnalystReview:
		log.Info("quarantine recommended, awaiting analyst review")
		action.Action = "quarantine_recommended"
		return s.publish(ctx, domain.TopicQuarantineRecommended, action)

	default:
		log.Info("verdict below review band, analyst decision required")
		action.Action = "analyst_decision_required"
		return s.publish(ctx, domain.TopicAnalystDecisionRequired, action)
	}
}

// Quarantine places or refreshes an IP block with an expiry derived from the
// threat level. Info-level verdicts never reach here through the consumer,
// but direct callers get the same no-block policy applied.
func (s *Service) Quarantine(ctx context.Context, ip, attackType string, level domain.ThreatLevel, incidentID string) (*domain.QuarantineRecord, error) {
	if ip == "" {
		return nil, ErrMissingIP
	}

	duration, block := decision.QuarantineDurationFor(level)
	if !block {
		return nil, fmt.Errorf("threat level %q does not warrant a block", level)
	}

	now := s.now().UTC()
	record := &domain.QuarantineRecord{
		IPAddress:         ip,
		AttackType:        attackType,
		ThreatLevel:       level,
		QuarantinedAt:     now,
		Status:            domain.QuarantineStatusActive,
		RelatedIncidentID: incidentID,
	}
	if duration != decision.PermanentQuarantine {
		expires := now.Add(duration)
		record.ExpiresAt = &expires
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, err
	}

	recordBlockPlaced(string(level))
	return record, nil
}

// IsQuarantined reports whether an IP is under an active, unexpired block.
func (s *Service) IsQuarantined(ctx context.Context, ip string) (bool, error) {
	record, err := s.repo.GetByIP(ctx, ip)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.IsActive(s.now().UTC()), nil
}

// Release lifts a block before its expiry.
func (s *Service) Release(ctx context.Context, ip string) error {
	if err := s.repo.SetStatus(ctx, ip, domain.QuarantineStatusReleased); err != nil {
		return fmt.Errorf("release quarantine for %s: %w", ip, err)
	}
	recordBlockReleased(string(domain.QuarantineStatusReleased))
	return nil
}

// ExpireOverdue sweeps active records past their expiry and marks them
// expired. Run periodically from the app.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active quarantines: %w", err)
	}

	now := s.now().UTC()
	expired := 0
	for i := range active {
		record := &active[i]
		if record.ExpiresAt == nil || now.Before(*record.ExpiresAt) {
			continue
		}
		if err := s.repo.SetStatus(ctx, record.IPAddress, domain.QuarantineStatusExpired); err != nil {
			return expired, fmt.Errorf("expire quarantine for %s: %w", record.IPAddress, err)
		}
		recordBlockReleased(string(domain.QuarantineStatusExpired))
		expired++
	}

	if expired > 0 {
		ctxlog.FromContext(ctx).Info("expired overdue quarantines", "count", expired)
	}
	return expired, nil
}

func (s *Service) publish(ctx context.Context, topic string, payload domain.SecurityActionPayload) error {
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
