package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "responsegarden"

var (
	entriesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_appended_total",
			Help:      "Audit ledger entries appended by action and status",
		},
		[]string{"action", "status"},
	)

	timelineRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "timeline_requests_total",
			Help:      "Incident timeline reconstructions served",
		},
	)
)

func recordEntryAppended(action, status string) {
	entriesAppended.WithLabelValues(action, status).Inc()
}

func recordTimelineRequest() {
	timelineRequests.Inc()
}
