// Package metrics exposes the sync engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors updated by the poller and the services.
type Metrics struct {
	Registry *prometheus.Registry

	PollTicks       *prometheus.CounterVec
	PollSkipped     *prometheus.CounterVec
	PollErrors      *prometheus.CounterVec
	StaleRefreshes  prometheus.Counter
	MessagesSent    *prometheus.CounterVec
	PendingMessages prometheus.Gauge
}

// New creates the collectors and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitsync",
			Name:      "poll_ticks_total",
			Help:      "Poll ticks that started a fetch.",
		}, []string{"job"}),
		PollSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitsync",
			Name:      "poll_skipped_total",
			Help:      "Poll ticks skipped because a fetch was still outstanding.",
		}, []string{"job"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitsync",
			Name:      "poll_errors_total",
			Help:      "Failed poll fetches by error kind.",
		}, []string{"job", "kind"}),
		StaleRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fitsync",
			Name:      "thread_stale_total",
			Help:      "Thread refreshes discarded because they returned fewer messages than held.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitsync",
			Name:      "messages_sent_total",
			Help:      "Outbound message submissions by result.",
		}, []string{"result"}),
		PendingMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fitsync",
			Name:      "pending_messages",
			Help:      "Optimistic messages awaiting their confirmed copy.",
		}),
	}
	m.Registry.MustRegister(
		m.PollTicks,
		m.PollSkipped,
		m.PollErrors,
		m.StaleRefreshes,
		m.MessagesSent,
		m.PendingMessages,
		collectors.NewGoCollector(),
	)
	return m
}
