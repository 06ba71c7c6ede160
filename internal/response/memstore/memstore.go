// Package memstore is the in-memory workflow store used by tests and
// broker-less deployments.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/response"
)

// Repository is a map-backed workflow store keyed by incident id.
type Repository struct {
	mu        sync.RWMutex
	workflows map[string]domain.ResponseWorkflow
}

func NewRepository() *Repository {
	return &Repository{workflows: make(map[string]domain.ResponseWorkflow)}
}

func (r *Repository) SaveWorkflow(_ context.Context, workflow *domain.ResponseWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.IncidentID] = copyWorkflow(*workflow)
	return nil
}

func (r *Repository) GetWorkflow(_ context.Context, incidentID string) (*domain.ResponseWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[incidentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", response.ErrWorkflowNotFound, incidentID)
	}
	cp := copyWorkflow(workflow)
	return &cp, nil
}

func copyWorkflow(workflow domain.ResponseWorkflow) domain.ResponseWorkflow {
	if workflow.ActionsPlanned != nil {
		workflow.ActionsPlanned = append([]string(nil), workflow.ActionsPlanned...)
	}
	if workflow.ActionsTaken != nil {
		workflow.ActionsTaken = append([]domain.StepRecord(nil), workflow.ActionsTaken...)
	}
	return workflow
}
