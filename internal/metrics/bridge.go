// Package metrics registers the Prometheus collectors for the bridge daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "didit_bridge_starts_total",
		Help: "Total number of verification requests accepted by the bridge",
	})

	RejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "didit_bridge_rejected_total",
		Help: "Total number of start calls rejected before reaching the SDK, by code",
	}, []string{"code"})

	OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "didit_bridge_outcomes_total",
		Help: "Total number of resolved verification requests by outcome kind and code",
	}, []string{"kind", "code"})

	RaceNoopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "didit_bridge_race_noops_total",
		Help: "Resolutions discarded because the request was already resolved, by source",
	}, []string{"source"})

	LaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "didit_bridge_ui_launches_total",
		Help: "Verification UI launch attempts by result",
	}, []string{"result"})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "didit_sdk_state_transitions_total",
		Help: "SDK lifecycle transitions observed by the bridge, by state",
	}, []string{"state"})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "didit_bridge_pending_requests",
		Help: "Number of verification requests currently occupying the slot (0 or 1)",
	})

	ResolutionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "didit_bridge_resolution_seconds",
		Help:    "Time from accepted start to resolution",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})
)

// IncRejected records a locally rejected start call.
func IncRejected(code string) {
	if code == "" {
		code = "unknown"
	}
	RejectedTotal.WithLabelValues(code).Inc()
}

// ObserveOutcome records a resolved request.
func ObserveOutcome(kind, code string, elapsed time.Duration) {
	if code == "" {
		code = "none"
	}
	OutcomesTotal.WithLabelValues(kind, code).Inc()
	ResolutionSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// IncRaceNoop records a resolution that lost the race.
func IncRaceNoop(source string) {
	if source == "" {
		source = "unknown"
	}
	RaceNoopsTotal.WithLabelValues(source).Inc()
}

// IncLaunch records a UI launch attempt.
func IncLaunch(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	LaunchesTotal.WithLabelValues(result).Inc()
}

// IncStateTransition records an observed SDK lifecycle state.
func IncStateTransition(state string) {
	StateTransitionsTotal.WithLabelValues(state).Inc()
}
