package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound webhook counters
	InboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "chat",
			Name:      "inbound_events_total",
			Help:      "Total inbound carrier events by channel and result",
		},
		[]string{"channel", "result"},
	)

	// Responder invocation counters
	ResponderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "responder",
			Name:      "calls_total",
			Help:      "Responder gateway invocations by outcome",
		},
		[]string{"outcome"},
	)

	ResponderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "responder",
			Name:      "call_duration_seconds",
			Help:      "Responder call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "concierge",
			Subsystem: "responder",
			Name:      "circuit_breaker_open",
			Help:      "1 when the responder circuit breaker is open",
		},
	)

	// Outbound delivery counters
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "delivery",
			Name:      "sends_total",
			Help:      "Outbound carrier sends by channel and result",
		},
		[]string{"channel", "result"},
	)

	// Queue depth gauge
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "concierge",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Claimable task queue depth",
		},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Processed tasks by type and result",
		},
		[]string{"type", "result"},
	)

	// Realtime hub gauges
	OperatorSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "concierge",
			Subsystem: "realtime",
			Name:      "operator_sessions",
			Help:      "Connected operator websocket sessions",
		},
	)
)
