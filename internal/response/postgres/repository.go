// Package postgres provides the PostgreSQL implementation of the response
// workflow repository. Planned and taken actions are stored as jsonb.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/response"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements response.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// SaveWorkflow upserts the workflow state for an incident.
func (r *Repository) SaveWorkflow(ctx context.Context, workflow *domain.ResponseWorkflow) error {
	query := `
		INSERT INTO response_workflows (
			incident_id, strategy, actions_planned, actions_taken,
			status, task_handle, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (incident_id) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			actions_planned = EXCLUDED.actions_planned,
			actions_taken = EXCLUDED.actions_taken,
			status = EXCLUDED.status,
			task_handle = EXCLUDED.task_handle,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		workflow.IncidentID,
		workflow.Strategy,
		workflow.ActionsPlanned,
		workflow.ActionsTaken,
		workflow.Status,
		workflow.TaskHandle,
		workflow.ErrorMessage,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves the workflow for an incident.
func (r *Repository) GetWorkflow(ctx context.Context, incidentID string) (*domain.ResponseWorkflow, error) {
	query := `
		SELECT incident_id, strategy, actions_planned, actions_taken,
		       status, task_handle, error_message, created_at, updated_at
		FROM response_workflows
		WHERE incident_id = $1
	`
	var workflow domain.ResponseWorkflow
	err := r.db.QueryRow(ctx, query, incidentID).Scan(
		&workflow.IncidentID,
		&workflow.Strategy,
		&workflow.ActionsPlanned,
		&workflow.ActionsTaken,
		&workflow.Status,
		&workflow.TaskHandle,
		&workflow.ErrorMessage,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", response.ErrWorkflowNotFound, incidentID)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &workflow, nil
}
