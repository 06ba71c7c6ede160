package domain

import "time"

type TriageDecision string

const (
	TriageDecisionConfirmedRansomware TriageDecision = "confirmed_ransomware"
	TriageDecisionSuspicious          TriageDecision = "suspicious"
	TriageDecisionEscalateHuman       TriageDecision = "escalate_human"
	TriageDecisionFalsePositive       TriageDecision = "false_positive"
)

// IsValid reports whether the decision is one of the known values.
func (d TriageDecision) IsValid() bool {
	switch d {
	case TriageDecisionConfirmedRansomware, TriageDecisionSuspicious,
		TriageDecisionEscalateHuman, TriageDecisionFalsePositive:
		return true
	}
	return false
}

type ThreatLevel string

const (
	ThreatLevelInfo     ThreatLevel = "info"
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

// TriageResult is the decision engine verdict for an incident. One result
// per incident; a later result for the same incident overwrites the earlier
// one (last event wins by arrival order).
type TriageResult struct {
	IncidentID         string
	Decision           TriageDecision
	Confidence         float64 // 0.0-1.0
	ThreatScore        int     // 0-100
	ThreatLevel        ThreatLevel
	Reasoning          string
	RecommendedActions []string
	Signals            SignalBundle
	CreatedAt          time.Time
}

// SignalBundle is the raw evidence a triage verdict was derived from.
type SignalBundle struct {
	RuleMatches []RuleMatch        `json:"rule_matches"`
	ScanHits    []ScanHit          `json:"scan_hits"`
	Reputation  []ReputationSignal `json:"reputation"`
}

// RuleMatch is a static detection rule that fired against the alert.
type RuleMatch struct {
	RuleID      string `json:"rule_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ScanHit is a content/binary analysis hit with an analyst-assigned severity.
type ScanHit struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"` // high, medium, low
	Target   string `json:"target,omitempty"`
}

type ReputationVerdict string

// A missing provider must never be treated as clean, so "unavailable" is an
// explicit variant rather than an absent entry.
const (
	ReputationUnavailable ReputationVerdict = "unavailable"
	ReputationClean       ReputationVerdict = "clean"
	ReputationSuspicious  ReputationVerdict = "suspicious"
	ReputationMalicious   ReputationVerdict = "malicious"
)

// ReputationSignal is one external reputation lookup, normalized.
type ReputationSignal struct {
	Provider   string            `json:"provider"`
	Subject    string            `json:"subject"` // ip, hash or domain looked up
	Verdict    ReputationVerdict `json:"verdict"`
	Confidence int               `json:"confidence"` // 0-100, provider-reported
	KnownHash  bool              `json:"known_hash,omitempty"`
}
