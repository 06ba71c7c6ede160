package response

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "responsegarden"

var (
	workflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response",
			Name:      "workflows_started_total",
			Help:      "Response workflows started by strategy",
		},
		[]string{"strategy"},
	)

	workflowsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response",
			Name:      "workflows_finished_total",
			Help:      "Response workflows finished by terminal status",
		},
		[]string{"status"},
	)

	stepExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response",
			Name:      "step_executions_total",
			Help:      "Workflow step outcomes by step and status",
		},
		[]string{"step", "status"},
	)

	stepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response",
			Name:      "step_retries_total",
			Help:      "Step execution retries by step",
		},
		[]string{"step"},
	)

	duplicateTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response",
			Name:      "duplicate_triggers_total",
			Help:      "Triggers ignored because a workflow already exists",
		},
	)
)

func recordWorkflowStarted(strategy string) {
	workflowsStarted.WithLabelValues(strategy).Inc()
}

func recordWorkflowFinished(status string) {
	workflowsFinished.WithLabelValues(status).Inc()
}

func recordStepExecution(step, status string) {
	stepExecutions.WithLabelValues(step, status).Inc()
}

func recordStepRetry(step string) {
	stepRetries.WithLabelValues(step).Inc()
}

func recordDuplicateTrigger() {
	duplicateTriggers.Inc()
}
