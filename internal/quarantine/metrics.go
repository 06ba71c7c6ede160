package quarantine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "responsegarden"

var (
	verdictsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quarantine",
			Name:      "verdicts_handled_total",
			Help:      "Triage verdicts handled by resulting response mode",
		},
		[]string{"mode"},
	)

	blocksPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quarantine",
			Name:      "blocks_placed_total",
			Help:      "Quarantine records placed or refreshed by threat level",
		},
		[]string{"threat_level"},
	)

	blocksReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quarantine",
			Name:      "blocks_released_total",
			Help:      "Quarantine records released or expired",
		},
		[]string{"status"},
	)
)

func recordVerdictHandled(mode string) {
	verdictsHandled.WithLabelValues(mode).Inc()
}

func recordBlockPlaced(level string) {
	blocksPlaced.WithLabelValues(level).Inc()
}

func recordBlockReleased(status string) {
	blocksReleased.WithLabelValues(status).Inc()
}
