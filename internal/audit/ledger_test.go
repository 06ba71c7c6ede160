package audit

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/response-garden/internal/domain"
)

type fakeRepo struct {
	entries map[string]*domain.AuditLogEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[string]*domain.AuditLogEntry)}
}

func (r *fakeRepo) Insert(_ context.Context, entry *domain.AuditLogEntry) error {
	if _, ok := r.entries[entry.LogID]; ok {
		return fmt.Errorf("%w: log_id=%s", ErrImmutabilityViolation, entry.LogID)
	}
	cp := *entry
	r.entries[entry.LogID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, logID string) (*domain.AuditLogEntry, error) {
	entry, ok := r.entries[logID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *fakeRepo) ListByTarget(_ context.Context, target string) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	for _, e := range r.entries {
		if e.Target == target {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func TestLedger_AppendComputesVerifiableHash(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewLedger(repo)
	ledger.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	logID, err := ledger.Append(context.Background(), AppendInput{
		Actor:        "response_service",
		Action:       "block_ip",
		Target:       "inc-001",
		ResourceType: "incident",
		Status:       "completed",
		Details:      map[string]any{"ip": "203.0.113.7"},
	})
	require.NoError(t, err)

	entry, err := repo.GetByID(context.Background(), logID)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.IntegrityHash)
	assert.Len(t, entry.IntegrityHash, 64)

	require.NoError(t, ledger.Verify(entry))
}

func TestLedger_VerifyDetectsTampering(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewLedger(repo)

	logID, err := ledger.Append(context.Background(), AppendInput{
		Actor:  "triage_service",
		Action: "triage.completed",
		Target: "inc-002",
		Status: "observed",
	})
	require.NoError(t, err)

	entry, err := repo.GetByID(context.Background(), logID)
	require.NoError(t, err)

	entry.Status = "falsified"
	assert.ErrorIs(t, ledger.Verify(entry), ErrIntegrityMismatch)
}

func TestLedger_HashIgnoresKeyInsertionOrder(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := &domain.AuditLogEntry{
		LogID:     "log-1",
		Actor:     "event_bus",
		Action:    "security.auto_quarantine",
		Target:    "inc-003",
		Status:    "observed",
		Details:   map[string]any{"ip": "203.0.113.7", "duration_hours": 24},
		CreatedAt: created,
	}
	b := &domain.AuditLogEntry{
		LogID:     "log-1",
		Actor:     "event_bus",
		Action:    "security.auto_quarantine",
		Target:    "inc-003",
		Status:    "observed",
		Details:   map[string]any{"duration_hours": 24, "ip": "203.0.113.7"},
		CreatedAt: created,
	}

	ha, err := EntryHash(a)
	require.NoError(t, err)
	hb, err := EntryHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestLedger_RepositoryRejectsRewrite(t *testing.T) {
	repo := newFakeRepo()

	entry := &domain.AuditLogEntry{LogID: "log-dup", Target: "inc-004", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Insert(context.Background(), entry))

	err := repo.Insert(context.Background(), entry)
	assert.ErrorIs(t, err, ErrImmutabilityViolation)
}
