package domain

import "time"

type IncidentStatus string

const (
	IncidentStatusDetected   IncidentStatus = "detected"
	IncidentStatusTriaged    IncidentStatus = "triaged"
	IncidentStatusResponding IncidentStatus = "responding"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusError      IncidentStatus = "error"
)

type IncidentSeverity string

const (
	IncidentSeverityLow      IncidentSeverity = "low"
	IncidentSeverityMedium   IncidentSeverity = "medium"
	IncidentSeverityHigh     IncidentSeverity = "high"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

// Incident is a security alert that entered the pipeline. Created on
// ingestion, mutated by triage and response, never deleted.
type Incident struct {
	ID        string
	Source    string
	Severity  IncidentSeverity
	Status    IncidentStatus
	RawData   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceIP returns the normalized source address from the raw alert, if any.
func (i *Incident) SourceIP() string {
	if v, ok := i.RawData["source_ip"].(string); ok {
		return v
	}
	return ""
}

// AgentID returns the endpoint agent identifier from the raw alert, if any.
func (i *Incident) AgentID() string {
	if v, ok := i.RawData["agent_id"].(string); ok {
		return v
	}
	return ""
}

// AttackType returns the classified attack kind from the raw alert, if any.
func (i *Incident) AttackType() string {
	if v, ok := i.RawData["attack_type"].(string); ok {
		return v
	}
	return ""
}

// FileHash returns the sample hash from the raw alert, if any.
func (i *Incident) FileHash() string {
	if v, ok := i.RawData["file_hash"].(string); ok {
		return v
	}
	return ""
}
