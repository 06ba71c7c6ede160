package audit

import (
	"context"

	"github.com/bissquit/response-garden/internal/domain"
)

// Repository is the append-only ledger store. There is deliberately no
// update or delete operation: implementations must reject writes to an
// existing log id with ErrImmutabilityViolation.
type Repository interface {
	Insert(ctx context.Context, entry *domain.AuditLogEntry) error
	GetByID(ctx context.Context, logID string) (*domain.AuditLogEntry, error)
	ListByTarget(ctx context.Context, target string) ([]domain.AuditLogEntry, error)
}
