package response

import (
	"context"

	"github.com/bissquit/response-garden/internal/domain"
)

// ActionInput is what a provider gets to act on: the incident identity plus
// the indicators lifted from the triage verdict.
type ActionInput struct {
	IncidentID  string
	SourceIP    string
	AgentID     string
	FileHash    string
	AttackType  string
	ThreatLevel domain.ThreatLevel
}

// ActionProvider executes one containment step against the outside world
// (firewall, EDR, ticketing). Implementations must be idempotent per
// incident: the orchestrator may re-invoke a step after a crash.
//
// Returning ErrStepNotApplicable records the step skipped and continues the
// chain; any other error is retried and eventually fails the workflow.
type ActionProvider interface {
	Execute(ctx context.Context, input ActionInput) (detail string, err error)
}

// ProviderFunc adapts a function to the ActionProvider interface.
type ProviderFunc func(ctx context.Context, input ActionInput) (string, error)

func (f ProviderFunc) Execute(ctx context.Context, input ActionInput) (string, error) {
	return f(ctx, input)
}

// ProviderRegistry maps step names to their providers. Steps without a
// registered provider are recorded skipped.
type ProviderRegistry struct {
	providers map[string]ActionProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]ActionProvider)}
}

// Register binds a provider to a step name, replacing any previous binding.
func (r *ProviderRegistry) Register(step string, p ActionProvider) {
	r.providers[step] = p
}

func (r *ProviderRegistry) provider(step string) (ActionProvider, bool) {
	p, ok := r.providers[step]
	return p, ok
}
