// Package metrics holds the prometheus collectors exported by focustimer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focustimer_transitions_total",
		Help: "Session state machine operations by outcome (applied or ignored)",
	}, []string{"op", "outcome"})

	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focustimer_ticks_total",
		Help: "Ticker fires, split into processed and skipped by the cadence guard",
	}, []string{"result"})

	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focustimer_publish_total",
		Help: "Publisher sink calls by sink and result",
	}, []string{"sink", "result"})

	PublishDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focustimer_publish_dropped_total",
		Help: "Snapshots dropped before reaching the sinks",
	}, []string{"reason"})

	PersistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focustimer_persist_failures_total",
		Help: "Finished sessions the persistence collaborator failed to store",
	})

	GuardEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focustimer_guard_events_total",
		Help: "Background continuation grant events",
	}, []string{"event"})

	SessionElapsedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focustimer_session_elapsed_seconds",
		Help: "Elapsed time of the active session",
	})
)

// IncTransition records a state machine operation.
func IncTransition(op string, applied bool) {
	outcome := "ignored"
	if applied {
		outcome = "applied"
	}
	TransitionsTotal.WithLabelValues(op, outcome).Inc()
}

// IncPublish records a sink call result.
func IncPublish(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PublishTotal.WithLabelValues(sink, result).Inc()
}

// IncPublishDropped records a dropped snapshot with a concrete reason.
func IncPublishDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	PublishDroppedTotal.WithLabelValues(reason).Inc()
}

// IncGuard records a guard event such as acquire, renew, expire or denied.
func IncGuard(event string) {
	GuardEventsTotal.WithLabelValues(event).Inc()
}
