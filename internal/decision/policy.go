package decision

import (
	"time"

	"github.com/bissquit/response-garden/internal/domain"
)

// Quarantine durations per threat level. PermanentQuarantine is the
// sentinel for "no expiry".
const (
	PermanentQuarantine = time.Duration(0)

	QuarantineDurationHigh   = 7 * 24 * time.Hour
	QuarantineDurationMedium = 24 * time.Hour
	QuarantineDurationLow    = time.Hour
)

// Confidence-gated auto-response bands, on the effective 0-100 score.
// These are policy and get tuned; keep them named.
const (
	AutoQuarantineThreshold = 80 // strictly above: block immediately
	AnalystReviewThreshold  = 60 // [60,80]: recommend only, no block placed
)

// ResponseMode is the confidence-gated handling decision for a verdict,
// independent of the threat-level mapping.
type ResponseMode string

const (
	ResponseModeAutoQuarantine  ResponseMode = "auto_quarantine"
	ResponseModeAnalystReview   ResponseMode = "pending_analyst_review"
	ResponseModeAnalystDecision ResponseMode = "pending_analyst_decision"
)

// ResponseModeFor maps an effective score to its auto-response band.
func ResponseModeFor(score int) ResponseMode {
	switch {
	case score > AutoQuarantineThreshold:
		return ResponseModeAutoQuarantine
	case score >= AnalystReviewThreshold:
		return ResponseModeAnalystReview
	default:
		return ResponseModeAnalystDecision
	}
}

// QuarantineDurationFor returns the block duration for a threat level and
// whether a quarantine should be placed at all. PermanentQuarantine with
// ok=true means the block never expires.
func QuarantineDurationFor(level domain.ThreatLevel) (time.Duration, bool) {
	switch level {
	case domain.ThreatLevelCritical:
		return PermanentQuarantine, true
	case domain.ThreatLevelHigh:
		return QuarantineDurationHigh, true
	case domain.ThreatLevelMedium:
		return QuarantineDurationMedium, true
	case domain.ThreatLevelLow:
		return QuarantineDurationLow, true
	default:
		// info: log only, no block
		return 0, false
	}
}
