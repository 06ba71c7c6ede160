package triage

import (
	"context"

	"github.com/bissquit/response-garden/internal/domain"
)

// Repository stores incidents and their triage verdicts. A triage result is
// a plain upsert by incident id: redelivered or re-scored incidents
// overwrite the earlier verdict (last write wins).
type Repository interface {
	UpsertIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	SetIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) error

	UpsertTriageResult(ctx context.Context, result *domain.TriageResult) error
	GetTriageResult(ctx context.Context, incidentID string) (*domain.TriageResult, error)
}
