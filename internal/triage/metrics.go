package triage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "responsegarden"

var (
	incidentsTriaged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "incidents_triaged_total",
			Help:      "Incidents triaged by decision and threat level",
		},
		[]string{"decision", "threat_level"},
	)

	triageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "duration_seconds",
			Help:      "Wall time to triage one incident, including lookups",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func recordIncidentTriaged(decision, level string, seconds float64) {
	incidentsTriaged.WithLabelValues(decision, level).Inc()
	triageDuration.Observe(seconds)
}
