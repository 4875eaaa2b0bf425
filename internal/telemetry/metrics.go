package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clueboard",
		Name:      "actions_total",
		Help:      "Room actions handled, by action and error code.",
	}, []string{"action", "code"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clueboard",
		Name:      "action_duration_seconds",
		Help:      "Latency of room actions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clueboard",
		Name:      "websocket_connections",
		Help:      "Open websocket connections, by role.",
	}, []string{"role"})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clueboard",
		Name:      "broadcasts_total",
		Help:      "Notifications published to room channels, by event.",
	}, []string{"event"})
)

// ObserveAction records one handled action. code is 0 on success.
func ObserveAction(action string, code int, took time.Duration) {
	actionsTotal.WithLabelValues(action, strconv.Itoa(code)).Inc()
	actionDuration.WithLabelValues(action).Observe(took.Seconds())
}

// TrackConnection counts an open websocket until the returned func is called.
func TrackConnection(role string) func() {
	g := connections.WithLabelValues(role)
	g.Inc()
	return g.Dec
}

func ObserveBroadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}
