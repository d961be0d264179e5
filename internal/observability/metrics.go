package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stratus"

// Metrics holds the Prometheus collectors for the Stratus service. Each
// instance owns a private registry so tests can create as many as needed.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	// Workflow metrics
	workflowsStarted  prometheus.Counter
	workflowsFinished *prometheus.CounterVec
	workflowsActive   prometheus.Gauge
	workflowDuration  *prometheus.HistogramVec

	// Task metrics
	tasksSubmitted *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec

	// Compiler metrics
	distributionUnits prometheus.Histogram
	compileFailures   *prometheus.CounterVec

	// Controller metrics
	controllerPasses       prometheus.Counter
	controllerPassDuration prometheus.Histogram

	// Storage metrics
	journalErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),

		workflowsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflows_started_total",
			Help: "Workflows accepted for execution.",
		}),
		workflowsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflows_finished_total",
			Help: "Workflows that reached a terminal status.",
		}, []string{"status"}),
		workflowsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workflows_active",
			Help: "Workflows currently driven by the controller.",
		}),
		workflowDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "workflow_duration_seconds",
			Help:    "Time from submission to terminal status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"status"}),

		tasksSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_submitted_total",
			Help: "Tasks submitted to a backend.",
		}, []string{"backend"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds",
			Help:    "Time a task spent executing on its backend.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"backend", "status"}),

		distributionUnits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "distribution_units",
			Help:    "Execution units produced per compiled request.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		compileFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "compile_failures_total",
			Help: "Requests that failed before execution, by error class.",
		}, []string{"reason"}),

		controllerPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "controller_passes_total",
			Help: "Controller update passes over active workflows.",
		}),
		controllerPassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "controller_pass_duration_seconds",
			Help:    "Duration of one controller pass.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		journalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "journal_errors_total",
			Help: "Failed writes to the workflow journal.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ServeHTTP serves the metrics in the Prometheus exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}

// WorkflowStarted records a workflow handed to the controller.
func (m *Metrics) WorkflowStarted() {
	m.workflowsStarted.Inc()
	m.workflowsActive.Inc()
}

// WorkflowFinished records a workflow reaching a terminal status.
func (m *Metrics) WorkflowFinished(status string, elapsed time.Duration) {
	m.workflowsFinished.WithLabelValues(status).Inc()
	m.workflowDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	m.workflowsActive.Dec()
}

// TaskSubmitted records a task handed to a backend.
func (m *Metrics) TaskSubmitted(backend string) {
	m.tasksSubmitted.WithLabelValues(backend).Inc()
}

// TaskFinished records a task's execution time.
func (m *Metrics) TaskFinished(backend, status string, elapsed time.Duration) {
	m.taskDuration.WithLabelValues(backend, status).Observe(elapsed.Seconds())
}

// Distributed records how many execution units a request compiled into.
func (m *Metrics) Distributed(units int) {
	m.distributionUnits.Observe(float64(units))
}

// CompileFailed records a request that failed before execution.
func (m *Metrics) CompileFailed(reason string) {
	m.compileFailures.WithLabelValues(reason).Inc()
}

// ControllerPass records one controller pass.
func (m *Metrics) ControllerPass(elapsed time.Duration) {
	m.controllerPasses.Inc()
	m.controllerPassDuration.Observe(elapsed.Seconds())
}

// JournalError records a failed journal write.
func (m *Metrics) JournalError() {
	m.journalErrors.Inc()
}
