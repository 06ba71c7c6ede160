package domain

import "time"

// Routing keys for every event the services exchange. Dot-segmented topics;
// subscribers bind with exact keys or wildcard patterns.
const (
	TopicIncidentReceived = "incident.received"
	TopicTriageCompleted  = "triage.completed"

	TopicWorkflowStarted   = "response.workflow.started"
	TopicWorkflowCompleted = "response.workflow.completed"
	TopicWorkflowFailed    = "response.workflow.failed"

	TopicAutoQuarantine          = "security.auto_quarantine"
	TopicQuarantineRecommended   = "security.quarantine_recommended"
	TopicAnalystDecisionRequired = "security.analyst_decision_required"

	TopicAlertRaised = "alert.raised"
)

// StepCompletedTopic builds the per-step completion routing key,
// e.g. "response.quarantine_host.completed".
func StepCompletedTopic(step string) string {
	return "response." + step + ".completed"
}

// Event is the bus envelope. Not persisted by the bus itself; consumers
// that need durability (the audit ledger) persist on their side.
type Event struct {
	ID          string    `json:"event_id"`
	RoutingKey  string    `json:"routing_key"`
	Payload     []byte    `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

// IncidentReceivedPayload is the body of incident.received.
type IncidentReceivedPayload struct {
	IncidentID string         `json:"incident_id"`
	RawData    map[string]any `json:"raw_data"`
}

// TriageCompletedPayload is the body of triage.completed. SourceIP and
// AttackType are lifted out of the raw alert so downstream consumers do not
// need an incident lookup to act on the verdict.
type TriageCompletedPayload struct {
	IncidentID   string           `json:"incident_id"`
	SourceIP     string           `json:"source_ip,omitempty"`
	AttackType   string           `json:"attack_type,omitempty"`
	AgentID      string           `json:"agent_id,omitempty"`
	FileHash     string           `json:"file_hash,omitempty"`
	TriageResult TriageResultWire `json:"triage_result"`
}

// TriageResultWire is the wire form of a TriageResult.
type TriageResultWire struct {
	Decision           TriageDecision `json:"decision"`
	Confidence         float64        `json:"confidence"`
	ThreatScore        int            `json:"threat_score"`
	ThreatLevel        ThreatLevel    `json:"threat_level"`
	Reasoning          string         `json:"reasoning"`
	RecommendedActions []string       `json:"recommended_actions"`
	Signals            SignalBundle   `json:"signals"`
}

// WorkflowStartedPayload is the body of response.workflow.started.
type WorkflowStartedPayload struct {
	IncidentID     string           `json:"incident_id"`
	Strategy       WorkflowStrategy `json:"strategy"`
	ActionsPlanned []string         `json:"actions_planned"`
	TaskHandle     string           `json:"task_handle"`
}

// StepCompletedPayload is the body of response.<step>.completed.
type StepCompletedPayload struct {
	IncidentID string     `json:"incident_id"`
	Step       string     `json:"step"`
	Status     StepStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
}

// WorkflowCompletedPayload is the body of response.workflow.completed.
type WorkflowCompletedPayload struct {
	IncidentID   string       `json:"incident_id"`
	ActionsTaken []StepRecord `json:"actions_taken"`
}

// WorkflowFailedPayload is the body of response.workflow.failed.
type WorkflowFailedPayload struct {
	IncidentID string `json:"incident_id"`
	FailedStep string `json:"failed_step"`
	Error      string `json:"error"`
}

// SecurityActionPayload is the body of the security.* verdict topics.
type SecurityActionPayload struct {
	IncidentID string  `json:"incident_id"`
	IPAddress  string  `json:"ip_address"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
}

// AlertRaisedPayload is the body of alert.raised, the external alert emitted
// when automation gives up on an incident.
type AlertRaisedPayload struct {
	Target   string `json:"target"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}
