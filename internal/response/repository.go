package response

import (
	"context"

	"github.com/bissquit/response-garden/internal/domain"
)

// Repository stores response workflows, one per incident. Save is an upsert:
// the orchestrator persists every state transition write-ahead, so a crash
// resumes from the last recorded step.
type Repository interface {
	SaveWorkflow(ctx context.Context, workflow *domain.ResponseWorkflow) error
	GetWorkflow(ctx context.Context, incidentID string) (*domain.ResponseWorkflow, error)
}
