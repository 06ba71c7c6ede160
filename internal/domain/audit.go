package domain

import "time"

// AuditLogEntry is one record in the append-only audit ledger. Immutable
// once created: IntegrityHash is computed over the canonical serialization
// of all other fields at append time.
type AuditLogEntry struct {
	LogID         string
	Actor         string
	Action        string
	Target        string
	ResourceType  string
	Status        string
	Details       map[string]any
	CreatedAt     time.Time
	IntegrityHash string
}

// TimelineEntry is one event in a reconstructed incident timeline.
type TimelineEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details"`
}

// IncidentTimeline is the canonical, time-ordered history of an incident:
// ledger entries plus synthetic triage and response summaries.
type IncidentTimeline struct {
	IncidentID         string          `json:"incident_id"`
	ThreatScore        *int            `json:"threat_score,omitempty"`
	ThreatLevel        ThreatLevel     `json:"threat_level,omitempty"`
	Decision           TriageDecision  `json:"decision,omitempty"`
	RecommendedActions []string        `json:"recommended_actions,omitempty"`
	Events             []TimelineEntry `json:"events"`
}
