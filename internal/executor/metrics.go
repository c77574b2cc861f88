package executor

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studiosync",
			Subsystem: "executor",
			Name:      "queue_depth",
			Help:      "Tool calls waiting to run",
		},
	)

	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studiosync",
			Subsystem: "executor",
			Name:      "running",
			Help:      "Tool calls currently running",
		},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiosync",
			Subsystem: "executor",
			Name:      "tool_calls_total",
			Help:      "Completed tool calls by outcome",
		},
		[]string{"tool", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "studiosync",
			Subsystem: "executor",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool bodies in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, running, toolCallsTotal, toolDuration)
}
