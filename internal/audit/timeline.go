package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bissquit/response-garden/internal/domain"
)

// TriageReader looks up the current triage verdict for an incident.
// Implemented by the triage repository.
type TriageReader interface {
	GetTriageResult(ctx context.Context, incidentID string) (*domain.TriageResult, error)
}

// WorkflowReader looks up the current response workflow for an incident.
// Implemented by the response repository.
type WorkflowReader interface {
	GetWorkflow(ctx context.Context, incidentID string) (*domain.ResponseWorkflow, error)
}

// ErrNoHistory is returned when an incident has neither ledger entries nor
// triage/response state.
var ErrNoHistory = errors.New("no recorded history for incident")

// TimelineService reconstructs per-incident timelines from the ledger plus
// synthetic triage and response summaries.
type TimelineService struct {
	repo      Repository
	triage    TriageReader
	workflows WorkflowReader
}

// NewTimelineService creates a timeline service.
func NewTimelineService(repo Repository, triage TriageReader, workflows WorkflowReader) *TimelineService {
	return &TimelineService{repo: repo, triage: triage, workflows: workflows}
}

// Timeline returns the canonical, time-sorted history of an incident.
func (s *TimelineService) Timeline(ctx context.Context, incidentID string) (*domain.IncidentTimeline, error) {
	entries, err := s.repo.ListByTarget(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	timeline := &domain.IncidentTimeline{IncidentID: incidentID}

	for _, e := range entries {
		timeline.Events = append(timeline.Events, domain.TimelineEntry{
			Timestamp: e.CreatedAt,
			EventType: e.Action,
			Source:    e.Actor,
			Details:   e.Details,
		})
	}

	triage, err := s.triage.GetTriageResult(ctx, incidentID)
	if err == nil && triage != nil {
		score := triage.ThreatScore
		timeline.ThreatScore = &score
		timeline.ThreatLevel = triage.ThreatLevel
		timeline.Decision = triage.Decision
		timeline.RecommendedActions = triage.RecommendedActions

		timeline.Events = append(timeline.Events, domain.TimelineEntry{
			Timestamp: triage.CreatedAt,
			EventType: "triage_summary",
			Source:    "triage_service",
			Details: map[string]any{
				"decision":            triage.Decision,
				"confidence":          triage.Confidence,
				"threat_score":        triage.ThreatScore,
				"threat_level":        triage.ThreatLevel,
				"reasoning":           triage.Reasoning,
				"recommended_actions": triage.RecommendedActions,
			},
		})
	}

	workflow, err := s.workflows.GetWorkflow(ctx, incidentID)
	if err == nil && workflow != nil {
		timeline.Events = append(timeline.Events, domain.TimelineEntry{
			Timestamp: workflow.UpdatedAt,
			EventType: "response_summary",
			Source:    "response_service",
			Details: map[string]any{
				"strategy":        workflow.Strategy,
				"status":          workflow.Status,
				"actions_planned": workflow.ActionsPlanned,
				"actions_taken":   workflow.ActionsTaken,
			},
		})
	}

	if len(timeline.Events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, incidentID)
	}

	sort.SliceStable(timeline.Events, func(i, j int) bool {
		return timeline.Events[i].Timestamp.Before(timeline.Events[j].Timestamp)
	})

	recordTimelineRequest()
	return timeline, nil
}
