package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studiosync",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Live connections",
		},
	)

	groupsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studiosync",
			Subsystem: "hub",
			Name:      "groups",
			Help:      "Non-empty groups",
		},
	)

	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiosync",
			Subsystem: "hub",
			Name:      "messages_received_total",
			Help:      "Inbound messages by type",
		},
		[]string{"type"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiosync",
			Subsystem: "hub",
			Name:      "messages_sent_total",
			Help:      "Outbound messages by type",
		},
		[]string{"type"},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studiosync",
			Subsystem: "hub",
			Name:      "evictions_total",
			Help:      "Connections evicted as stale",
		},
	)
)

func init() {
	prometheus.MustRegister(connectionsGauge, groupsGauge, messagesReceived, messagesSent, evictionsTotal)
}
