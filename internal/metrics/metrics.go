// Package metrics provides Prometheus metrics for the suggestion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matchmaker"

var (
	// TransitionsTotal counts committed status transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of committed suggestion status transitions",
		},
		[]string{"from", "to", "actor"},
	)

	// TransitionErrorsTotal counts rejected or failed lifecycle operations by error kind.
	TransitionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transition_errors_total",
			Help:      "Total number of failed lifecycle operations by error kind",
		},
		[]string{"kind"},
	)

	// SweeperRunsTotal counts sweeper ticks by outcome.
	SweeperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Total number of deadline sweeper runs by result",
		},
		[]string{"result"},
	)

	// SweeperExpiredTotal counts suggestions expired by the sweeper.
	SweeperExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "expired_total",
			Help:      "Total number of suggestions expired by the deadline sweeper",
		},
	)

	// NotificationsTotal counts enqueued notification intents.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "intents_total",
			Help:      "Total number of notification intents by type and result",
		},
		[]string{"intent", "result"},
	)

	// AutoAdvanceTotal counts follow-up transitions performed by the worker.
	AutoAdvanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "auto_advance_total",
			Help:      "Total number of auto-advance intents handled by result",
		},
		[]string{"result"},
	)
)

// Result label values shared by the counters above.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultLocked  = "locked"
)
