// Package metrics defines the Prometheus instrumentation for the
// playbook engine. All collectors are registered on the default
// registry at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlaybookExecutionsTotal counts finished executions by final status.
	PlaybookExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "responder_playbook_executions_total",
		Help: "Total number of playbook executions by final status",
	}, []string{"playbook", "status"})

	// PlaybookExecutionDuration observes wall-clock execution time.
	PlaybookExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "responder_playbook_execution_duration_seconds",
		Help:    "Playbook execution duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"playbook"})

	// ActiveExecutions gauges executions currently in flight.
	ActiveExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "responder_playbook_active_executions",
		Help: "Number of playbook executions currently running",
	})

	// StepFailuresTotal counts failed steps by step kind.
	StepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "responder_playbook_step_failures_total",
		Help: "Total number of failed playbook steps by step kind",
	}, []string{"step_type"})

	// StepRetriesTotal counts retry attempts beyond the first.
	StepRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "responder_playbook_step_retries_total",
		Help: "Total number of step retry attempts",
	})

	// NotificationsSentTotal counts notification deliveries by channel
	// and outcome.
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "responder_notifications_sent_total",
		Help: "Total notifications sent by channel and outcome",
	}, []string{"channel", "outcome"})
)
