// Package postgres provides the PostgreSQL implementation of the triage
// repository. Raw alert data, recommended actions and signal bundles are
// stored as jsonb.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/triage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements triage.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertIncident inserts an incident or refreshes its mutable fields. The
// original created_at is preserved on conflict.
func (r *Repository) UpsertIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			id, source, severity, status, raw_data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			raw_data = EXCLUDED.raw_data,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		incident.ID,
		incident.Source,
		incident.Severity,
		incident.Status,
		incident.RawData,
		incident.CreatedAt,
		incident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by id.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, source, severity, status, raw_data, created_at, updated_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Source,
		&incident.Severity,
		&incident.Status,
		&incident.RawData,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", triage.ErrIncidentNotFound, id)
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &incident, nil
}

// SetIncidentStatus updates the pipeline status of an incident.
func (r *Repository) SetIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE incidents SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", triage.ErrIncidentNotFound, id)
	}
	return nil
}

// UpsertTriageResult stores the verdict for an incident, replacing any
// earlier one.
func (r *Repository) UpsertTriageResult(ctx context.Context, result *domain.TriageResult) error {
	query := `
		INSERT INTO triage_results (
			incident_id, decision, confidence, threat_score, threat_level,
			reasoning, recommended_actions, signals, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (incident_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			confidence = EXCLUDED.confidence,
			threat_score = EXCLUDED.threat_score,
			threat_level = EXCLUDED.threat_level,
			reasoning = EXCLUDED.reasoning,
			recommended_actions = EXCLUDED.recommended_actions,
			signals = EXCLUDED.signals,
			created_at = EXCLUDED.created_at
	`
	_, err := r.db.Exec(ctx, query,
		result.IncidentID,
		result.Decision,
		result.Confidence,
		result.ThreatScore,
		result.ThreatLevel,
		result.Reasoning,
		result.RecommendedActions,
		result.Signals,
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert triage result: %w", err)
	}
	return nil
}

// GetTriageResult retrieves the current verdict for an incident.
func (r *Repository) GetTriageResult(ctx context.Context, incidentID string) (*domain.TriageResult, error) {
	query := `
		SELECT incident_id, decision, confidence, threat_score, threat_level,
		       reasoning, recommended_actions, signals, created_at
		FROM triage_results
		WHERE incident_id = $1
	`
	var result domain.TriageResult
	err := r.db.QueryRow(ctx, query, incidentID).Scan(
		&result.IncidentID,
		&result.Decision,
		&result.Confidence,
		&result.ThreatScore,
		&result.ThreatLevel,
		&result.Reasoning,
		&result.RecommendedActions,
		&result.Signals,
		&result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", triage.ErrResultNotFound, incidentID)
		}
		return nil, fmt.Errorf("get triage result: %w", err)
	}
	return &result, nil
}
