// Package decision converts raw signal bundles into threat scores, threat
// levels and triage verdicts, and owns the quarantine policy derived from
// them.
package decision

import (
	"fmt"
	"strings"

	"github.com/bissquit/response-garden/internal/domain"
)

// Threat level thresholds. A score maps to exactly one level.
const (
	ScoreCritical = 80
	ScoreHigh     = 60
	ScoreMedium   = 30
)

// Per-source score weights. Each source contributes a bounded partial score;
// the total is clamped to [0,100].
const (
	ruleMatchScore = 10 // per matched rule
	ruleMatchCap   = 25

	scanHitHigh   = 15
	scanHitMedium = 8
	scanHitLow    = 3
	scanHitCap    = 25

	reputationWeight = 40 // provider confidence scales linearly into this
	knownHashBonus   = 10
)

// Verdict decision thresholds (restored triage heuristic): scores at or
// above ScoreCritical confirm, the high band escalates to a human, scores
// below ScoreMedium are dismissed.
const maxScore = 100

// Engine is the scoring decision engine. Stateless; safe for concurrent use.
type Engine struct{}

// NewEngine creates a decision engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score computes the additive, capped weighted sum over a signal bundle and
// the threat level it maps to.
func (e *Engine) Score(bundle domain.SignalBundle) (int, domain.ThreatLevel) {
	score := 0

	ruleScore := len(bundle.RuleMatches) * ruleMatchScore
	if ruleScore > ruleMatchCap {
		ruleScore = ruleMatchCap
	}
	score += ruleScore

	scanScore := 0
	for _, hit := range bundle.ScanHits {
		switch strings.ToLower(hit.Severity) {
		case "high":
			scanScore += scanHitHigh
		case "medium":
			scanScore += scanHitMedium
		default:
			scanScore += scanHitLow
		}
	}
	if scanScore > scanHitCap {
		scanScore = scanHitCap
	}
	score += scanScore

	// Reputation: the strongest non-clean provider wins. An unavailable
	// provider contributes nothing but is never mistaken for clean; the
	// verdict keeps it visible in the reasoning instead.
	repScore := 0
	knownHash := false
	for _, rep := range bundle.Reputation {
		switch rep.Verdict {
		case domain.ReputationMalicious, domain.ReputationSuspicious:
			contribution := rep.Confidence * reputationWeight / 100
			if rep.Verdict == domain.ReputationMalicious && contribution < reputationWeight/2 {
				contribution = reputationWeight / 2
			}
			if contribution > repScore {
				repScore = contribution
			}
		}
		if rep.KnownHash {
			knownHash = true
		}
	}
	score += repScore
	// fixed bonus, once per bundle no matter how many providers agree
	if knownHash {
		score += knownHashBonus
	}

	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}

	return score, LevelFor(score)
}

// LevelFor maps a score to its threat level. Total and monotonic.
func LevelFor(score int) domain.ThreatLevel {
	switch {
	case score >= ScoreCritical:
		return domain.ThreatLevelCritical
	case score >= ScoreHigh:
		return domain.ThreatLevelHigh
	case score >= ScoreMedium:
		return domain.ThreatLevelMedium
	default:
		return domain.ThreatLevelLow
	}
}

// Decide produces the full triage verdict for a signal bundle.
func (e *Engine) Decide(incidentID string, bundle domain.SignalBundle) domain.TriageResult {
	score, level := e.Score(bundle)

	var decision domain.TriageDecision
	switch {
	case score >= ScoreCritical:
		decision = domain.TriageDecisionConfirmedRansomware
	case score >= ScoreHigh:
		decision = domain.TriageDecisionEscalateHuman
	case score < ScoreMedium:
		decision = domain.TriageDecisionFalsePositive
	default:
		decision = domain.TriageDecisionSuspicious
	}

	return domain.TriageResult{
		IncidentID:         incidentID,
		Decision:           decision,
		Confidence:         float64(score) / float64(maxScore),
		ThreatScore:        score,
		ThreatLevel:        level,
		Reasoning:          e.reasoning(score, bundle),
		RecommendedActions: recommendedActions(decision),
		Signals:            bundle,
	}
}

func (e *Engine) reasoning(score int, bundle domain.SignalBundle) string {
	unavailable := 0
	for _, rep := range bundle.Reputation {
		if rep.Verdict == domain.ReputationUnavailable {
			unavailable++
		}
	}

	r := fmt.Sprintf("score=%d; rules=%d; scan_hits=%d; reputation_lookups=%d",
		score, len(bundle.RuleMatches), len(bundle.ScanHits), len(bundle.Reputation))
	if unavailable > 0 {
		r += fmt.Sprintf("; providers_unavailable=%d (not treated as clean)", unavailable)
	}
	return r
}

func recommendedActions(decision domain.TriageDecision) []string {
	switch decision {
	case domain.TriageDecisionConfirmedRansomware:
		return []string{domain.StepQuarantineHost, domain.StepBlockIP, domain.StepEscalate, domain.StepCollectForensics}
	case domain.TriageDecisionEscalateHuman:
		return []string{domain.StepEscalate, domain.StepCollectForensics}
	case domain.TriageDecisionSuspicious:
		return []string{domain.StepEscalate}
	default:
		return nil
	}
}
