package response_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/response-garden/internal/audit"
	auditmem "github.com/bissquit/response-garden/internal/audit/memstore"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/response"
	"github.com/bissquit/response-garden/internal/response/memstore"
)

type published struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: routingKey, payload: payload})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.topic
	}
	return out
}

type fakeIncidents struct {
	mu       sync.Mutex
	statuses map[string]domain.IncidentStatus
}

func newFakeIncidents() *fakeIncidents {
	return &fakeIncidents{statuses: make(map[string]domain.IncidentStatus)}
}

func (f *fakeIncidents) SetIncidentStatus(_ context.Context, id string, status domain.IncidentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeIncidents) status(id string) domain.IncidentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

type countingProvider struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many times before succeeding
	err      error
	detail   string
}

func (p *countingProvider) Execute(_ context.Context, _ response.ActionInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if p.calls <= p.failures {
		return "", fmt.Errorf("transient failure %d", p.calls)
	}
	return p.detail, nil
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	orchestrator *response.Orchestrator
	repo         *memstore.Repository
	audits       *auditmem.Repository
	pub          *fakePublisher
	incidents    *fakeIncidents
	registry     *response.ProviderRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memstore.NewRepository()
	audits := auditmem.NewRepository()
	pub := &fakePublisher{}
	incidents := newFakeIncidents()
	registry := response.NewProviderRegistry()

	orchestrator := response.NewOrchestrator(repo, registry, pub,
		audit.NewLedger(audits), incidents, response.Config{
			MaxAttempts: 3,
			RetryDelay:  time.Millisecond,
			StepTimeout: time.Second,
		})
	return &fixture{
		orchestrator: orchestrator,
		repo:         repo,
		audits:       audits,
		pub:          pub,
		incidents:    incidents,
		registry:     registry,
	}
}

func trigger(incidentID string, decision domain.TriageDecision, score int) domain.TriageCompletedPayload {
	return domain.TriageCompletedPayload{
		IncidentID: incidentID,
		SourceIP:   "203.0.113.7",
		AttackType: "ransomware",
		TriageResult: domain.TriageResultWire{
			Decision:    decision,
			Confidence:  float64(score) / 100,
			ThreatScore: score,
			ThreatLevel: domain.ThreatLevelCritical,
		},
	}
}

func TestStrategyFor_Deterministic(t *testing.T) {
	tests := []struct {
		name     string
		decision domain.TriageDecision
		score    int
		want     domain.WorkflowStrategy
	}{
		{"confirmed ransomware", domain.TriageDecisionConfirmedRansomware, 95, domain.StrategyFullAuto},
		{"high score without confirmation", domain.TriageDecisionSuspicious, 85, domain.StrategyFullAuto},
		{"escalate human", domain.TriageDecisionEscalateHuman, 65, domain.StrategySemiAuto},
		{"mid score suspicious", domain.TriageDecisionSuspicious, 45, domain.StrategySemiAuto},
		{"low score", domain.TriageDecisionFalsePositive, 20, domain.StrategyAnalystOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := response.StrategyFor(tt.decision, tt.score)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, response.StrategyFor(tt.decision, tt.score), "same input, same strategy")
		})
	}
}

func TestPlannedActions_FullAutoOrder(t *testing.T) {
	assert.Equal(t, []string{
		domain.StepQuarantineHost,
		domain.StepBlockIP,
		domain.StepEscalate,
		domain.StepCollectForensics,
		domain.StepFinalize,
	}, response.PlannedActions(domain.StrategyFullAuto))
}

func TestExecute_FullAutoHappyPath(t *testing.T) {
	f := newFixture(t)
	for _, step := range []string{
		domain.StepQuarantineHost, domain.StepBlockIP,
		domain.StepEscalate, domain.StepCollectForensics,
	} {
		f.registry.Register(step, &countingProvider{detail: step + " done"})
	}
	ctx := context.Background()

	require.NoError(t, f.orchestrator.Execute(ctx, trigger("inc-1", domain.TriageDecisionConfirmedRansomware, 92)))

	workflow, err := f.repo.GetWorkflow(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
	require.Len(t, workflow.ActionsTaken, 5)
	for i, step := range workflow.ActionsPlanned {
		assert.Equal(t, step, workflow.ActionsTaken[i].Name)
		assert.Equal(t, domain.StepStatusCompleted, workflow.ActionsTaken[i].Status)
	}

	assert.Equal(t, domain.IncidentStatusResolved, f.incidents.status("inc-1"))

	assert.Equal(t, []string{
		domain.TopicWorkflowStarted,
		domain.StepCompletedTopic(domain.StepQuarantineHost),
		domain.StepCompletedTopic(domain.StepBlockIP),
		domain.StepCompletedTopic(domain.StepEscalate),
		domain.StepCompletedTopic(domain.StepCollectForensics),
		domain.StepCompletedTopic(domain.StepFinalize),
		domain.TopicWorkflowCompleted,
	}, f.pub.topics())

	entries, err := f.audits.ListByTarget(ctx, "inc-1")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	f := newFixture(t)
	flaky := &countingProvider{failures: 2, detail: "blocked"}
	f.registry.Register(domain.StepBlockIP, flaky)
	ctx := context.Background()

	require.NoError(t, f.orchestrator.Execute(ctx, trigger("inc-2", domain.TriageDecisionEscalateHuman, 65)))

	assert.Equal(t, 3, flaky.callCount())
	workflow, err := f.repo.GetWorkflow(ctx, "inc-2")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
}

func TestExecute_ExhaustedRetriesFailWorkflow(t *testing.T) {
	f := newFixture(t)
	broken := &countingProvider{err: errors.New("firewall unreachable")}
	escalate := &countingProvider{detail: "ticket opened"}
	f.registry.Register(domain.StepBlockIP, broken)
	f.registry.Register(domain.StepEscalate, escalate)
	ctx := context.Background()

	err := f.orchestrator.Execute(ctx, trigger("inc-3", domain.TriageDecisionEscalateHuman, 65))
	require.Error(t, err)

	assert.Equal(t, 3, broken.callCount())
	assert.Zero(t, escalate.callCount(), "no steps after the failed one")

	workflow, getErr := f.repo.GetWorkflow(ctx, "inc-3")
	require.NoError(t, getErr)
	assert.Equal(t, domain.WorkflowStatusError, workflow.Status)
	assert.Contains(t, workflow.ErrorMessage, "firewall unreachable")
	assert.Equal(t, domain.IncidentStatusError, f.incidents.status("inc-3"))

	entries, listErr := f.audits.ListByTarget(ctx, "inc-3")
	require.NoError(t, listErr)
	errorEntries := 0
	for _, e := range entries {
		if e.Status == "error" {
			errorEntries++
		}
	}
	assert.Equal(t, 1, errorEntries, "exactly one error audit entry")

	topics := f.pub.topics()
	assert.Contains(t, topics, domain.TopicWorkflowFailed)
	assert.Contains(t, topics, domain.TopicAlertRaised)
	assert.NotContains(t, topics, domain.TopicWorkflowCompleted)
}

func TestExecute_SkippedStepContinuesChain(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(domain.StepBlockIP, response.ProviderFunc(
		func(_ context.Context, _ response.ActionInput) (string, error) {
			return "", fmt.Errorf("%w: no source ip", response.ErrStepNotApplicable)
		}))
	escalate := &countingProvider{detail: "ticket opened"}
	f.registry.Register(domain.StepEscalate, escalate)
	ctx := context.Background()

	require.NoError(t, f.orchestrator.Execute(ctx, trigger("inc-4", domain.TriageDecisionEscalateHuman, 65)))

	workflow, err := f.repo.GetWorkflow(ctx, "inc-4")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
	assert.Equal(t, domain.StepStatusSkipped, workflow.ActionsTaken[0].Status)
	assert.Equal(t, 1, escalate.callCount())
}

func TestExecute_UnregisteredStepIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orchestrator.Execute(ctx, trigger("inc-5", domain.TriageDecisionFalsePositive, 20)))

	workflow, err := f.repo.GetWorkflow(ctx, "inc-5")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
	assert.Equal(t, domain.StrategyAnalystOnly, workflow.Strategy)
	assert.Equal(t, domain.StepStatusSkipped, workflow.ActionsTaken[0].Status)
	assert.Equal(t, domain.StepStatusCompleted, workflow.ActionsTaken[1].Status)
}

func TestExecute_RepeatedTriggerIsNoOp(t *testing.T) {
	f := newFixture(t)
	provider := &countingProvider{detail: "blocked"}
	f.registry.Register(domain.StepBlockIP, provider)
	ctx := context.Background()

	payload := trigger("inc-6", domain.TriageDecisionEscalateHuman, 65)
	require.NoError(t, f.orchestrator.Execute(ctx, payload))
	require.NoError(t, f.orchestrator.Execute(ctx, payload))

	assert.Equal(t, 1, provider.callCount())

	workflow, err := f.repo.GetWorkflow(ctx, "inc-6")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
}

// flakyWorkflowRepo fails GetWorkflow a configured number of times before
// delegating, so tests can simulate a store hiccup on the duplicate guard.
type flakyWorkflowRepo struct {
	*memstore.Repository
	mu       sync.Mutex
	getFails int
}

func (r *flakyWorkflowRepo) GetWorkflow(ctx context.Context, incidentID string) (*domain.ResponseWorkflow, error) {
	r.mu.Lock()
	if r.getFails > 0 {
		r.getFails--
		r.mu.Unlock()
		return nil, errors.New("transient: connection reset")
	}
	r.mu.Unlock()
	return r.Repository.GetWorkflow(ctx, incidentID)
}

func TestExecute_StoreErrorOnGuardDoesNotRerunSteps(t *testing.T) {
	repo := &flakyWorkflowRepo{Repository: memstore.NewRepository()}
	audits := auditmem.NewRepository()
	pub := &fakePublisher{}
	incidents := newFakeIncidents()
	registry := response.NewProviderRegistry()

	blockIP := &countingProvider{detail: "blocked"}
	registry.Register(domain.StepBlockIP, blockIP)

	orchestrator := response.NewOrchestrator(repo, registry, pub,
		audit.NewLedger(audits), incidents, response.Config{
			MaxAttempts: 3,
			RetryDelay:  time.Millisecond,
			StepTimeout: time.Second,
		})

	ctx := context.Background()
	payload := trigger("inc-7", domain.TriageDecisionEscalateHuman, 65)
	require.NoError(t, orchestrator.Execute(ctx, payload))
	require.Equal(t, 1, blockIP.callCount())

	workflow, err := repo.GetWorkflow(ctx, "inc-7")
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
	taken := len(workflow.ActionsTaken)

	// a failing lookup is not proof the workflow is absent; the redelivery
	// must error out instead of running the chain again
	repo.mu.Lock()
	repo.getFails = 1
	repo.mu.Unlock()

	require.Error(t, orchestrator.Execute(ctx, payload))
	assert.Equal(t, 1, blockIP.callCount())

	workflow, err = repo.GetWorkflow(ctx, "inc-7")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
	assert.Len(t, workflow.ActionsTaken, taken)
}
