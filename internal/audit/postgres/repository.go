// Package postgres provides the PostgreSQL implementation of the audit
// repository. The audit_logs table is append-only; a database trigger
// rejects UPDATE and DELETE, and this repository exposes no way to issue
// either.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/response-garden/internal/audit"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements audit.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert appends a new ledger entry.
func (r *Repository) Insert(ctx context.Context, entry *domain.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (
			log_id, actor, action, target, resource_type,
			status, details, created_at, integrity_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		entry.LogID,
		entry.Actor,
		entry.Action,
		entry.Target,
		entry.ResourceType,
		entry.Status,
		entry.Details,
		entry.CreatedAt,
		entry.IntegrityHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// unique violation on log_id means someone is rewriting history
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: log_id=%s", audit.ErrImmutabilityViolation, entry.LogID)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetByID retrieves an entry by log id.
func (r *Repository) GetByID(ctx context.Context, logID string) (*domain.AuditLogEntry, error) {
	query := `
		SELECT log_id, actor, action, target, resource_type,
		       status, details, created_at, integrity_hash
		FROM audit_logs
		WHERE log_id = $1
	`
	var entry domain.AuditLogEntry
	err := r.db.QueryRow(ctx, query, logID).Scan(
		&entry.LogID,
		&entry.Actor,
		&entry.Action,
		&entry.Target,
		&entry.ResourceType,
		&entry.Status,
		&entry.Details,
		&entry.CreatedAt,
		&entry.IntegrityHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, audit.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return &entry, nil
}

// ListByTarget returns all entries for a target ordered by creation time.
func (r *Repository) ListByTarget(ctx context.Context, target string) ([]domain.AuditLogEntry, error) {
	query := `
		SELECT log_id, actor, action, target, resource_type,
		       status, details, created_at, integrity_hash
		FROM audit_logs
		WHERE target = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(
			&entry.LogID,
			&entry.Actor,
			&entry.Action,
			&entry.Target,
			&entry.ResourceType,
			&entry.Status,
			&entry.Details,
			&entry.CreatedAt,
			&entry.IntegrityHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
