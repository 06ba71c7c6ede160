package triage

import (
	"context"

	"github.com/bissquit/response-garden/internal/domain"
)

// ReputationClient is one external reputation provider. Implementations are
// injected by the app; this package never talks to a provider directly.
type ReputationClient interface {
	// Provider returns the stable provider name used in signals and logs.
	Provider() string

	// Lookup resolves the reputation of an IP, hash or domain. A transport
	// or provider failure must surface as an error so the caller can record
	// an explicit unavailable signal instead of assuming clean.
	Lookup(ctx context.Context, subject string) (domain.ReputationSignal, error)
}
