package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for kiln. A disabled instance is a
// no-op so call sites never need nil checks.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Task metrics
	tasksCompleted *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of build invocations started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of build invocations completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of build invocations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		tasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks reaching a terminal state",
			},
			[]string{"project", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"project"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.tasksCompleted,
		m.taskDuration,
	)

	return m, nil
}

// RunStarted records the start of a build invocation.
func (m *Metrics) RunStarted() {
	if m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RunCompleted records a finished build invocation.
func (m *Metrics) RunCompleted(status string, seconds float64) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(seconds)
}

// TaskCompleted records a task reaching a terminal state.
func (m *Metrics) TaskCompleted(project, status string, seconds float64) {
	if m.registry == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(project, status).Inc()
	m.taskDuration.WithLabelValues(project).Observe(seconds)
}

// Handler returns an HTTP handler serving the metrics endpoint, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics HTTP endpoint. It blocks until the server fails,
// so callers run it in a goroutine alongside long-lived modes.
func (m *Metrics) Serve() error {
	if m.registry == nil {
		return nil
	}
	mux := http.NewServeMux()
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
