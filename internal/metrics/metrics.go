// Package metrics holds the relay's prometheus collectors. They are registered
// on the default registry and exposed by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})

	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "events_received_total",
		Help:      "Inbound client events by name and outcome.",
	}, []string{"event", "outcome"})

	EventsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "events_sent_total",
		Help:      "Outbound events queued for delivery.",
	}, []string{"event"})

	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "events_dropped_total",
		Help:      "Outbound events dropped by reason.",
	}, []string{"reason"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Name:      "rate_limited_total",
		Help:      "Inbound events rejected by the per-connection limiter.",
	})
)

func init() {
	prometheus.MustRegister(Connections)
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(EventsSent)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(RateLimited)
}

// RegisterRooms exposes the live room count reported by fn.
func RegisterRooms(fn func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "parley",
		Name:      "call_rooms",
		Help:      "Call rooms with at least one member.",
	}, func() float64 { return float64(fn()) }))
}
