// Package postgres provides the PostgreSQL implementation of the quarantine
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/quarantine"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements quarantine.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts a block or refreshes the existing row for the same IP.
func (r *Repository) Upsert(ctx context.Context, record *domain.QuarantineRecord) error {
	query := `
		INSERT INTO quarantine_records (
			ip_address, attack_type, threat_level, quarantined_at,
			expires_at, status, related_incident_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ip_address) DO UPDATE SET
			attack_type = EXCLUDED.attack_type,
			threat_level = EXCLUDED.threat_level,
			quarantined_at = EXCLUDED.quarantined_at,
			expires_at = EXCLUDED.expires_at,
			status = EXCLUDED.status,
			related_incident_id = EXCLUDED.related_incident_id
	`
	_, err := r.db.Exec(ctx, query,
		record.IPAddress,
		record.AttackType,
		record.ThreatLevel,
		record.QuarantinedAt,
		record.ExpiresAt,
		record.Status,
		record.RelatedIncidentID,
	)
	if err != nil {
		return fmt.Errorf("upsert quarantine record: %w", err)
	}
	return nil
}

// GetByIP retrieves the block for an IP.
func (r *Repository) GetByIP(ctx context.Context, ip string) (*domain.QuarantineRecord, error) {
	query := `
		SELECT ip_address, attack_type, threat_level, quarantined_at,
		       expires_at, status, related_incident_id
		FROM quarantine_records
		WHERE ip_address = $1
	`
	var record domain.QuarantineRecord
	err := r.db.QueryRow(ctx, query, ip).Scan(
		&record.IPAddress,
		&record.AttackType,
		&record.ThreatLevel,
		&record.QuarantinedAt,
		&record.ExpiresAt,
		&record.Status,
		&record.RelatedIncidentID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", quarantine.ErrRecordNotFound, ip)
		}
		return nil, fmt.Errorf("get quarantine record: %w", err)
	}
	return &record, nil
}

// ListActive returns all blocks currently marked active.
func (r *Repository) ListActive(ctx context.Context) ([]domain.QuarantineRecord, error) {
	query := `
		SELECT ip_address, attack_type, threat_level, quarantined_at,
		       expires_at, status, related_incident_id
		FROM quarantine_records
		WHERE status = $1
		ORDER BY quarantined_at ASC
	`
	rows, err := r.db.Query(ctx, query, domain.QuarantineStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active quarantines: %w", err)
	}
	defer rows.Close()

	var out []domain.QuarantineRecord
	for rows.Next() {
		var record domain.QuarantineRecord
		if err := rows.Scan(
			&record.IPAddress,
			&record.AttackType,
			&record.ThreatLevel,
			&record.QuarantinedAt,
			&record.ExpiresAt,
			&record.Status,
			&record.RelatedIncidentID,
		); err != nil {
			return nil, fmt.Errorf("scan quarantine record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine records: %w", err)
	}
	return out, nil
}

// SetStatus updates the lifecycle status of a block.
func (r *Repository) SetStatus(ctx context.Context, ip string, status domain.QuarantineStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quarantine_records SET status = $1 WHERE ip_address = $2`,
		status, ip,
	)
	if err != nil {
		return fmt.Errorf("update quarantine status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", quarantine.ErrRecordNotFound, ip)
	}
	return nil
}
