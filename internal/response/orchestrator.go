// Package response orchestrates automated containment: it selects a strategy
// for each triage verdict and drives the ordered step chain against action
// providers, persisting every transition so redelivery and crashes never
// repeat a side effect.
package response

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/response-garden/internal/audit"
	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Orchestrator execution tuning.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 30 * time.Second
	DefaultStepTimeout = 30 * time.Second
)

// Config tunes step execution.
type Config struct {
	// MaxAttempts is the total number of tries per step before the workflow
	// fails.
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// StepTimeout bounds one provider invocation.
	StepTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	return c
}

// IncidentStatusSetter transitions the incident record as the workflow
// progresses. Implemented by the triage repository.
type IncidentStatusSetter interface {
	SetIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) error
}

// Orchestrator runs response workflows. Workflows for different incidents
// may run concurrently; per incident, a lock plus the persisted state check
// guarantee at most one live workflow.
type Orchestrator struct {
	repo      Repository
	providers *ProviderRegistry
	publisher bus.Publisher
	ledger    *audit.Ledger
	incidents IncidentStatusSetter
	cfg       Config
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator creates a response orchestrator.
func NewOrchestrator(
	repo Repository,
	providers *ProviderRegistry,
	publisher bus.Publisher,
	ledger *audit.Ledger,
	incidents IncidentStatusSetter,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		providers: providers,
		publisher: publisher,
		ledger:    ledger,
		incidents: incidents,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Execute runs the full response workflow for one triage verdict. Repeated
// calls for an incident that already has a workflow are no-ops.
func (o *Orchestrator) Execute(ctx context.Context, trigger domain.TriageCompletedPayload) error {
	lock := o.incidentLock(trigger.IncidentID)
	lock.Lock()
	defer o.releaseIncidentLock(trigger.IncidentID)
	defer lock.Unlock()

	log := ctxlog.FromContext(ctx).With("incident_id", trigger.IncidentID)

	existing, err := o.repo.GetWorkflow(ctx, trigger.IncidentID)
	if err == nil {
		log.Info("workflow already exists, ignoring trigger", "status", existing.Status)
		recordDuplicateTrigger()
		return nil
	}
	if !errors.Is(err, ErrWorkflowNotFound) {
		// a store error is not proof of absence; creating here would rerun
		// side effects on redelivery
		return fmt.Errorf("check existing workflow for %s: %w", trigger.IncidentID, err)
	}

	strategy := StrategyFor(trigger.TriageResult.Decision, trigger.TriageResult.ThreatScore)
	now := o.now().UTC()
	workflow := &domain.ResponseWorkflow{
		IncidentID:     trigger.IncidentID,
		Strategy:       strategy,
		ActionsPlanned: PlannedActions(strategy),
		Status:         domain.WorkflowStatusPending,
		TaskHandle:     uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.repo.SaveWorkflow(ctx, workflow); err != nil {
		return fmt.Errorf("create workflow for %s: %w", trigger.IncidentID, err)
	}

	if err := o.incidents.SetIncidentStatus(ctx, trigger.IncidentID, domain.IncidentStatusResponding); err != nil {
		log.Warn("incident transition to responding failed", "error", err)
	}

	if err := o.publisher.Publish(ctx, domain.TopicWorkflowStarted, domain.WorkflowStartedPayload{
		IncidentID:     workflow.IncidentID,
		Strategy:       workflow.Strategy,
		ActionsPlanned: workflow.ActionsPlanned,
		TaskHandle:     workflow.TaskHandle,
	}); err != nil {
		return fmt.Errorf("publish workflow started: %w", err)
	}

	workflow.Status = domain.WorkflowStatusRunning
	workflow.UpdatedAt = o.now().UTC()
	if err := o.repo.SaveWorkflow(ctx, workflow); err != nil {
		return fmt.Errorf("persist running workflow: %w", err)
	}

	recordWorkflowStarted(string(strategy))
	log.Info("response workflow started",
		"strategy", strategy,
		"actions_planned", workflow.ActionsPlanned,
		"task_handle", workflow.TaskHandle,
	)

	input := ActionInput{
		IncidentID:  trigger.IncidentID,
		SourceIP:    trigger.SourceIP,
		AgentID:     trigger.AgentID,
		FileHash:    trigger.FileHash,
		AttackType:  trigger.AttackType,
		ThreatLevel: trigger.TriageResult.ThreatLevel,
	}
	return o.runSteps(ctx, workflow, input)
}

func (o *Orchestrator) runSteps(ctx context.Context, workflow *domain.ResponseWorkflow, input ActionInput) error {
	log := ctxlog.FromContext(ctx).With("incident_id", workflow.IncidentID)

	for _, step := range workflow.ActionsPlanned {
		if workflow.StepTaken(step) {
			continue
		}

		record, err := o.executeStep(ctx, step, input)
		if err != nil {
			return o.failWorkflow(ctx, workflow, step, err)
		}

		// write-ahead: persist the step before announcing it
		workflow.ActionsTaken = append(workflow.ActionsTaken, record)
		workflow.UpdatedAt = o.now().UTC()
		if err := o.repo.SaveWorkflow(ctx, workflow); err != nil {
			return o.failWorkflow(ctx, workflow, step, fmt.Errorf("persist step %s: %w", step, err))
		}

		recordStepExecution(step, string(record.Status))
		if err := o.publisher.Publish(ctx, domain.StepCompletedTopic(step), domain.StepCompletedPayload{
			IncidentID: workflow.IncidentID,
			Step:       step,
			Status:     record.Status,
			Detail:     record.Detail,
		}); err != nil {
			log.Warn("step completion publish failed", "step", step, "error", err)
		}

		if _, err := o.ledger.Append(ctx, audit.AppendInput{
			Actor:        "response_service",
			Action:       step,
			Target:       workflow.IncidentID,
			ResourceType: "incident",
			Status:       string(record.Status),
			Details:      map[string]any{"detail": record.Detail, "strategy": workflow.Strategy},
		}); err != nil {
			log.Warn("step audit append failed", "step", step, "error", err)
		}

		log.Info("workflow step finished", "step", step, "status", record.Status)
	}

	return o.completeWorkflow(ctx, workflow)
}

// executeStep runs one provider with retries. Finalize has no external side
// effect and never fails; absent providers mean the step is skipped.
func (o *Orchestrator) executeStep(ctx context.Context, step string, input ActionInput) (domain.StepRecord, error) {
	if step == domain.StepFinalize {
		return o.stepRecord(step, domain.StepStatusCompleted, "workflow finalized"), nil
	}

	provider, ok := o.providers.provider(step)
	if !ok {
		return o.stepRecord(step, domain.StepStatusSkipped, "no provider registered"), nil
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			recordStepRetry(step)
			select {
			case <-time.After(o.cfg.RetryDelay):
			case <-ctx.Done():
				return domain.StepRecord{}, ctx.Err()
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		detail, err := provider.Execute(stepCtx, input)
		cancel()

		if err == nil {
			return o.stepRecord(step, domain.StepStatusCompleted, detail), nil
		}
		if errors.Is(err, ErrStepNotApplicable) {
			return o.stepRecord(step, domain.StepStatusSkipped, err.Error()), nil
		}

		lastErr = err
		ctxlog.FromContext(ctx).Warn("workflow step attempt failed",
			"incident_id", input.IncidentID,
			"step", step,
			"attempt", attempt,
			"error", err,
		)
	}

	return domain.StepRecord{}, fmt.Errorf("step %s exhausted %d attempts: %w", step, o.cfg.MaxAttempts, lastErr)
}

func (o *Orchestrator) completeWorkflow(ctx context.Context, workflow *domain.ResponseWorkflow) error {
	workflow.Status = domain.WorkflowStatusCompleted
	workflow.UpdatedAt = o.now().UTC()
	if err := o.repo.SaveWorkflow(ctx, workflow); err != nil {
		return fmt.Errorf("persist completed workflow: %w", err)
	}

	if err := o.incidents.SetIncidentStatus(ctx, workflow.IncidentID, domain.IncidentStatusResolved); err != nil {
		ctxlog.FromContext(ctx).Warn("incident transition to resolved failed",
			"incident_id", workflow.IncidentID, "error", err)
	}

	if err := o.publisher.Publish(ctx, domain.TopicWorkflowCompleted, domain.WorkflowCompletedPayload{
		IncidentID:   workflow.IncidentID,
		ActionsTaken: workflow.ActionsTaken,
	}); err != nil {
		return fmt.Errorf("publish workflow completed: %w", err)
	}

	recordWorkflowFinished(string(domain.WorkflowStatusCompleted))
	ctxlog.FromContext(ctx).Info("response workflow completed",
		"incident_id", workflow.IncidentID,
		"actions_taken", len(workflow.ActionsTaken),
	)
	return nil
}

// failWorkflow records the terminal error state: one error audit entry, a
// failure event and an external alert. No further steps run.
func (o *Orchestrator) failWorkflow(ctx context.Context, workflow *domain.ResponseWorkflow, step string, cause error) error {
	workflow.Status = domain.WorkflowStatusError
	workflow.ErrorMessage = cause.Error()
	workflow.UpdatedAt = o.now().UTC()
	if err := o.repo.SaveWorkflow(ctx, workflow); err != nil {
		ctxlog.FromContext(ctx).Error("failed workflow not persisted",
			"incident_id", workflow.IncidentID, "error", err)
	}

	if err := o.incidents.SetIncidentStatus(ctx, workflow.IncidentID, domain.IncidentStatusError); err != nil {
		ctxlog.FromContext(ctx).Warn("incident transition to error failed",
			"incident_id", workflow.IncidentID, "error", err)
	}

	if _, err := o.ledger.Append(ctx, audit.AppendInput{
		Actor:        "response_service",
		Action:       "workflow.failed",
		Target:       workflow.IncidentID,
		ResourceType: "incident",
		Status:       "error",
		Details:      map[string]any{"failed_step": step, "error": cause.Error()},
	}); err != nil {
		ctxlog.FromContext(ctx).Warn("failure audit append failed",
			"incident_id", workflow.IncidentID, "error", err)
	}

	if err := o.publisher.Publish(ctx, domain.TopicWorkflowFailed, domain.WorkflowFailedPayload{
		IncidentID: workflow.IncidentID,
		FailedStep: step,
		Error:      cause.Error(),
	}); err != nil {
		ctxlog.FromContext(ctx).Warn("workflow failure publish failed",
			"incident_id", workflow.IncidentID, "error", err)
	}

	if err := o.publisher.Publish(ctx, domain.TopicAlertRaised, domain.AlertRaisedPayload{
		Target:   workflow.IncidentID,
		Message:  fmt.Sprintf("automated response failed at %s: %s", step, cause),
		Severity: "critical",
	}); err != nil {
		ctxlog.FromContext(ctx).Warn("alert publish failed",
			"incident_id", workflow.IncidentID, "error", err)
	}

	recordWorkflowFinished(string(domain.WorkflowStatusError))
	return fmt.Errorf("workflow for %s failed: %w", workflow.IncidentID, cause)
}

func (o *Orchestrator) stepRecord(step string, status domain.StepStatus, detail string) domain.StepRecord {
	return domain.StepRecord{
		Name:       step,
		Status:     status,
		Detail:     detail,
		FinishedAt: o.now().UTC(),
	}
}

func (o *Orchestrator) incidentLock(incidentID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[incidentID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[incidentID] = lock
	}
	return lock
}

// releaseIncidentLock drops the per-incident mutex entry so the map does
// not grow with every incident ever seen. Racers that already hold the old
// pointer still serialize against each other, and the persisted workflow
// makes any later trigger a no-op.
func (o *Orchestrator) releaseIncidentLock(incidentID string) {
	o.mu.Lock()
	delete(o.locks, incidentID)
	o.mu.Unlock()
}
