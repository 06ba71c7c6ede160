package response

import (
	"github.com/bissquit/response-garden/internal/decision"
	"github.com/bissquit/response-garden/internal/domain"
)

// SemiAutoScoreFloor is the lowest score that still gets automated network
// containment without a confirmed verdict.
const SemiAutoScoreFloor = 40

// StrategyFor maps a triage verdict to its response strategy. Deterministic:
// the same verdict always selects the same strategy.
func StrategyFor(decisionValue domain.TriageDecision, score int) domain.WorkflowStrategy {
	switch {
	case decisionValue == domain.TriageDecisionConfirmedRansomware || score >= decision.ScoreCritical:
		return domain.StrategyFullAuto
	case decisionValue == domain.TriageDecisionEscalateHuman || score >= SemiAutoScoreFloor:
		return domain.StrategySemiAuto
	default:
		return domain.StrategyAnalystOnly
	}
}

// PlannedActions returns the ordered step chain for a strategy. Every chain
// ends in finalize.
func PlannedActions(strategy domain.WorkflowStrategy) []string {
	switch strategy {
	case domain.StrategyFullAuto:
		return []string{
			domain.StepQuarantineHost,
			domain.StepBlockIP,
			domain.StepEscalate,
			domain.StepCollectForensics,
			domain.StepFinalize,
		}
	case domain.StrategySemiAuto:
		return []string{
			domain.StepBlockIP,
			domain.StepEscalate,
			domain.StepFinalize,
		}
	default:
		return []string{
			domain.StepEscalate,
			domain.StepFinalize,
		}
	}
}
