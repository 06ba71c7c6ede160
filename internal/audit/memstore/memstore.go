// Package memstore provides an in-memory implementation of the audit
// repository used by unit tests and storage-engine-agnostic deployments.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bissquit/response-garden/internal/audit"
	"github.com/bissquit/response-garden/internal/domain"
)

// Repository is an in-memory append-only ledger store. Entries are copied
// on read and write so callers can never mutate stored state in place.
type Repository struct {
	mu      sync.RWMutex
	entries map[string]domain.AuditLogEntry
}

// NewRepository creates an empty store.
func NewRepository() *Repository {
	return &Repository{entries: make(map[string]domain.AuditLogEntry)}
}

// Insert appends a new entry. A write to an existing log id fails with
// ErrImmutabilityViolation.
func (r *Repository) Insert(_ context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.LogID]; exists {
		return fmt.Errorf("%w: log_id=%s", audit.ErrImmutabilityViolation, entry.LogID)
	}
	r.entries[entry.LogID] = copyEntry(*entry)
	return nil
}

// GetByID returns a copy of the entry with the given log id.
func (r *Repository) GetByID(_ context.Context, logID string) (*domain.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[logID]
	if !ok {
		return nil, audit.ErrEntryNotFound
	}
	out := copyEntry(entry)
	return &out, nil
}

// ListByTarget returns copies of all entries for a target, ordered by
// creation time.
func (r *Repository) ListByTarget(_ context.Context, target string) ([]domain.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.AuditLogEntry
	for _, entry := range r.entries {
		if entry.Target == target {
			out = append(out, copyEntry(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func copyEntry(e domain.AuditLogEntry) domain.AuditLogEntry {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}
