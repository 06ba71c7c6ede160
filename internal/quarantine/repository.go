package quarantine

import (
	"context"

	"github.com/bissquit/response-garden/internal/domain"
)

// Repository stores network blocks keyed by IP address. Upsert refreshes an
// existing record for the same IP in place rather than growing history.
type Repository interface {
	Upsert(ctx context.Context, record *domain.QuarantineRecord) error
	GetByIP(ctx context.Context, ip string) (*domain.QuarantineRecord, error)
	ListActive(ctx context.Context) ([]domain.QuarantineRecord, error)
	SetStatus(ctx context.Context, ip string, status domain.QuarantineStatus) error
}
