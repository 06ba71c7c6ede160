// Package memstore is the in-memory incident and triage-result store used by
// tests and broker-less deployments.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/triage"
)

// Repository is a map-backed incident + triage-result store.
type Repository struct {
	mu        sync.RWMutex
	incidents map[string]domain.Incident
	results   map[string]domain.TriageResult
}

func NewRepository() *Repository {
	return &Repository{
		incidents: make(map[string]domain.Incident),
		results:   make(map[string]domain.TriageResult),
	}
}

func (r *Repository) UpsertIncident(_ context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyIncident(*incident)
	if existing, ok := r.incidents[incident.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	r.incidents[incident.ID] = stored
	return nil
}

func (r *Repository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	incident, ok := r.incidents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", triage.ErrIncidentNotFound, id)
	}
	cp := copyIncident(incident)
	return &cp, nil
}

func (r *Repository) SetIncidentStatus(_ context.Context, id string, status domain.IncidentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	incident, ok := r.incidents[id]
	if !ok {
		return fmt.Errorf("%w: %s", triage.ErrIncidentNotFound, id)
	}
	incident.Status = status
	incident.UpdatedAt = time.Now().UTC()
	r.incidents[id] = incident
	return nil
}

func (r *Repository) UpsertTriageResult(_ context.Context, result *domain.TriageResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[result.IncidentID] = *result
	return nil
}

func (r *Repository) GetTriageResult(_ context.Context, incidentID string) (*domain.TriageResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, ok := r.results[incidentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", triage.ErrResultNotFound, incidentID)
	}
	cp := result
	return &cp, nil
}

func copyIncident(incident domain.Incident) domain.Incident {
	if incident.RawData != nil {
		raw := make(map[string]any, len(incident.RawData))
		for k, v := range incident.RawData {
			raw[k] = v
		}
		incident.RawData = raw
	}
	return incident
}
