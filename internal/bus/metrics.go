package bus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "responsegarden"

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Events published by routing key",
		},
		[]string{"routing_key"},
	)

	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_delivered_total",
			Help:      "Events handed to handlers by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)

	bridgeDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "queue_depth",
			Help:      "Events buffered in the delivery bridge",
		},
		[]string{"service"},
	)

	bridgeBlocked = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "enqueue_blocked_seconds",
			Help:      "Time the consumer context spent blocked on a full bridge",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"service"},
	)
)

// RecordPublished and RecordDelivered are exported for the bus
// implementations in subpackages.
func RecordPublished(routingKey string) {
	eventsPublished.WithLabelValues(routingKey).Inc()
}

func RecordDelivered(queue, outcome string) {
	eventsDelivered.WithLabelValues(queue, outcome).Inc()
}

func recordBridgeDepth(service string, depth int) {
	bridgeDepth.WithLabelValues(service).Set(float64(depth))
}

func recordBridgeBlocked(service string, d time.Duration) {
	bridgeBlocked.WithLabelValues(service).Observe(d.Seconds())
}
