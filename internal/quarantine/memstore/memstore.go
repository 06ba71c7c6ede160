// Package memstore is the in-memory quarantine store used by tests and
// broker-less deployments.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/quarantine"
)

// Repository is a map-backed quarantine store keyed by IP address.
type Repository struct {
	mu      sync.RWMutex
	records map[string]domain.QuarantineRecord
}

func NewRepository() *Repository {
	return &Repository{records: make(map[string]domain.QuarantineRecord)}
}

// Upsert inserts a record or refreshes the existing one for the same IP.
func (r *Repository) Upsert(_ context.Context, record *domain.QuarantineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.IPAddress] = copyRecord(*record)
	return nil
}

func (r *Repository) GetByIP(_ context.Context, ip string) (*domain.QuarantineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[ip]
	if !ok {
		return nil, fmt.Errorf("%w: %s", quarantine.ErrRecordNotFound, ip)
	}
	cp := copyRecord(record)
	return &cp, nil
}

func (r *Repository) ListActive(_ context.Context) ([]domain.QuarantineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.QuarantineRecord
	for _, record := range r.records {
		if record.Status == domain.QuarantineStatusActive {
			out = append(out, copyRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuarantinedAt.Before(out[j].QuarantinedAt)
	})
	return out, nil
}

func (r *Repository) SetStatus(_ context.Context, ip string, status domain.QuarantineStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[ip]
	if !ok {
		return fmt.Errorf("%w: %s", quarantine.ErrRecordNotFound, ip)
	}
	record.Status = status
	r.records[ip] = record
	return nil
}

func copyRecord(record domain.QuarantineRecord) domain.QuarantineRecord {
	if record.ExpiresAt != nil {
		expires := *record.ExpiresAt
		record.ExpiresAt = &expires
	}
	return record
}
