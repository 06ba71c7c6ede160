package domain

import "time"

type WorkflowStrategy string

const (
	StrategyFullAuto    WorkflowStrategy = "full_auto"
	StrategySemiAuto    WorkflowStrategy = "semi_auto"
	StrategyAnalystOnly WorkflowStrategy = "analyst_only"
)

type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusError     WorkflowStatus = "error"
)

// Response workflow step names. Each maps to one action-provider call.
const (
	StepQuarantineHost   = "quarantine_host"
	StepBlockIP          = "block_ip"
	StepEscalate         = "escalate"
	StepCollectForensics = "collect_forensics"
	StepFinalize         = "finalize"
)

type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusFailed    StepStatus = "failed"
)

// StepRecord is one executed (or skipped/failed) step in a workflow.
type StepRecord struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}

// ResponseWorkflow is the persisted state machine for automated response to
// one incident. At most one instance exists per incident at a time.
type ResponseWorkflow struct {
	IncidentID     string
	Strategy       WorkflowStrategy
	ActionsPlanned []string
	ActionsTaken   []StepRecord // append-only during execution
	Status         WorkflowStatus
	TaskHandle     string // opaque token for polling
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StepTaken reports whether a step already has a terminal record. Used to
// keep step handlers idempotent under redelivery.
func (w *ResponseWorkflow) StepTaken(name string) bool {
	for _, s := range w.ActionsTaken {
		if s.Name == name {
			return true
		}
	}
	return false
}
