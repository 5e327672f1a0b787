// Package metrics exposes the orchestrator's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors shared by the scheduler, worker and API.
type Metrics struct {
	registry *prometheus.Registry

	WorkflowsSubmitted prometheus.Counter
	WorkflowsRevoked   prometheus.Counter
	TasksEnqueued      prometheus.Counter
	TasksCompleted     *prometheus.CounterVec
	RunningTasks       prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		WorkflowsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drama_workflows_submitted_total",
			Help: "Workflows accepted by the scheduler.",
		}),
		WorkflowsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drama_workflows_revoked_total",
			Help: "Workflows revoked.",
		}),
		TasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drama_tasks_enqueued_total",
			Help: "Tasks enqueued on the job queue.",
		}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drama_tasks_completed_total",
			Help: "Tasks reaching a terminal state.",
		}, []string{"status"}),
		RunningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drama_tasks_running",
			Help: "Tasks currently executing.",
		}),
	}

	registry.MustRegister(
		m.WorkflowsSubmitted,
		m.WorkflowsRevoked,
		m.TasksEnqueued,
		m.TasksCompleted,
		m.RunningTasks,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
