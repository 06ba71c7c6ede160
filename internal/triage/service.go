// Package triage turns incoming security alerts into scored verdicts: it
// consumes incident.received, gathers detection signals, runs the decision
// engine and publishes the verdict for the response and quarantine services.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bissquit/response-garden/internal/audit"
	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/decision"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
)

// ConsumerBindings are the routing keys the triage consumer subscribes to.
var ConsumerBindings = []string{domain.TopicIncidentReceived}

// Service is the triage pipeline stage.
type Service struct {
	repo       Repository
	engine     *decision.Engine
	ledger     *audit.Ledger
	publisher  bus.Publisher
	validator  *bus.PayloadValidator
	reputation []ReputationClient
	tracker    SourceTracker
	now        func() time.Time
}

// NewService creates a triage service. Both the reputation clients and the
// tracker are optional; triage degrades to rule and scan evidence without
// them.
func NewService(
	repo Repository,
	engine *decision.Engine,
	ledger *audit.Ledger,
	publisher bus.Publisher,
	validator *bus.PayloadValidator,
	reputation []ReputationClient,
	tracker SourceTracker,
) *Service {
	return &Service{
		repo:       repo,
		engine:     engine,
		ledger:     ledger,
		publisher:  publisher,
		validator:  validator,
		reputation: reputation,
		tracker:    tracker,
		now:        time.Now,
	}
}

// HandleIncidentReceived triages one incoming alert end to end: persist the
// incident, score it, store the verdict and announce it on the bus.
func (s *Service) HandleIncidentReceived(ctx context.Context, d bus.Delivery) error {
	if err := s.validator.Validate(d.RoutingKey, d.Body); err != nil {
		return err
	}

	var payload domain.IncidentReceivedPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return fmt.Errorf("%w: %s", bus.ErrMalformedEvent, err)
	}

	started := s.now()
	log := ctxlog.FromContext(ctx).With("incident_id", payload.IncidentID)

	incident := s.incidentFromPayload(payload)
	if err := s.repo.UpsertIncident(ctx, incident); err != nil {
		return fmt.Errorf("persist incident %s: %w", incident.ID, err)
	}

	bundle := s.collectSignals(ctx, incident)

	result := s.engine.Decide(incident.ID, bundle)
	result.CreatedAt = s.now().UTC()

	// last write wins: a redelivered incident simply re-scores
	if err := s.repo.UpsertTriageResult(ctx, &result); err != nil {
		return fmt.Errorf("persist triage result %s: %w", incident.ID, err)
	}
	if err := s.repo.SetIncidentStatus(ctx, incident.ID, domain.IncidentStatusTriaged); err != nil {
		return fmt.Errorf("transition incident %s: %w", incident.ID, err)
	}

	if _, err := s.ledger.Append(ctx, audit.AppendInput{
		Actor:        "triage_service",
		Action:       "incident.triaged",
		Target:       incident.ID,
		ResourceType: "incident",
		Status:       string(result.Decision),
		Details: map[string]any{
			"threat_score": result.ThreatScore,
			"threat_level": result.ThreatLevel,
			"confidence":   result.Confidence,
			"reasoning":    result.Reasoning,
		},
	}); err != nil {
		return fmt.Errorf("audit triage of %s: %w", incident.ID, err)
	}

	completed := domain.TriageCompletedPayload{
		IncidentID: incident.ID,
		SourceIP:   incident.SourceIP(),
		AttackType: incident.AttackType(),
		AgentID:    incident.AgentID(),
		FileHash:   incident.FileHash(),
		TriageResult: domain.TriageResultWire{
			Decision:           result.Decision,
			Confidence:         result.Confidence,
			ThreatScore:        result.ThreatScore,
			ThreatLevel:        result.ThreatLevel,
			Reasoning:          result.Reasoning,
			RecommendedActions: result.RecommendedActions,
			Signals:            result.Signals,
		},
	}
	if err := s.publisher.Publish(ctx, domain.TopicTriageCompleted, completed); err != nil {
		return fmt.Errorf("publish triage.completed for %s: %w", incident.ID, err)
	}

	recordIncidentTriaged(string(result.Decision), string(result.ThreatLevel), s.now().Sub(started).Seconds())
	log.Info("incident triaged",
		"decision", result.Decision,
		"threat_score", result.ThreatScore,
		"threat_level", result.ThreatLevel,
	)
	return nil
}

func (s *Service) incidentFromPayload(payload domain.IncidentReceivedPayload) *domain.Incident {
	now := s.now().UTC()

	source, _ := payload.RawData["source"].(string)
	if source == "" {
		source = "unknown"
	}

	severity := domain.IncidentSeverityMedium
	if v, ok := payload.RawData["severity"].(string); ok {
		switch domain.IncidentSeverity(v) {
		case domain.IncidentSeverityLow, domain.IncidentSeverityMedium,
			domain.IncidentSeverityHigh, domain.IncidentSeverityCritical:
			severity = domain.IncidentSeverity(v)
		}
	}

	return &domain.Incident{
		ID:        payload.IncidentID,
		Source:    source,
		Severity:  severity,
		Status:    domain.IncidentStatusDetected,
		RawData:   payload.RawData,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
