// Package audit implements the append-only, hash-chained audit ledger and
// the incident timeline reconstruction built on top of it.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/google/uuid"
)

// AppendInput holds the caller-supplied fields of a new ledger entry.
type AppendInput struct {
	Actor        string
	Action       string
	Target       string
	ResourceType string
	Status       string
	Details      map[string]any
}

// Ledger is the audit write service. Entries are hashed at append time and
// can never be modified afterwards.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a ledger over the given store.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Append records one security-relevant action and returns the new log id.
func (l *Ledger) Append(ctx context.Context, input AppendInput) (string, error) {
	entry := &domain.AuditLogEntry{
		LogID:        uuid.NewString(),
		Actor:        input.Actor,
		Action:       input.Action,
		Target:       input.Target,
		ResourceType: input.ResourceType,
		Status:       input.Status,
		Details:      input.Details,
		CreatedAt:    l.now().UTC(),
	}

	hash, err := EntryHash(entry)
	if err != nil {
		return "", fmt.Errorf("compute integrity hash: %w", err)
	}
	entry.IntegrityHash = hash

	if err := l.repo.Insert(ctx, entry); err != nil {
		return "", fmt.Errorf("append audit entry: %w", err)
	}

	recordEntryAppended(input.Action, input.Status)
	return entry.LogID, nil
}

// Verify recomputes an entry's integrity hash over its stored fields and
// checks it against the stored value.
func (l *Ledger) Verify(entry *domain.AuditLogEntry) error {
	hash, err := EntryHash(entry)
	if err != nil {
		return fmt.Errorf("compute integrity hash: %w", err)
	}
	if hash != entry.IntegrityHash {
		return fmt.Errorf("%w: log_id=%s", ErrIntegrityMismatch, entry.LogID)
	}
	return nil
}

// EntryHash computes the sha256 digest over the canonical serialization of
// every entry field except the hash itself.
func EntryHash(entry *domain.AuditLogEntry) (string, error) {
	canonical, err := CanonicalJSON(map[string]any{
		"log_id":        entry.LogID,
		"actor":         entry.Actor,
		"action":        entry.Action,
		"target":        entry.Target,
		"resource_type": entry.ResourceType,
		"status":        entry.Status,
		"details":       entry.Details,
		"created_at":    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
