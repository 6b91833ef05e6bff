// Package metrics exposes dispatch activity as Prometheus metrics.
//
// Collector plugs into the engine as an engine.Observer:
//
//	pewcron_decisions_total{task_id, task, decision}   one per dispatch that reached a decision
//	pewcron_attempts_total{task_id, task, outcome}     outcome is "ok" or "error"
//	pewcron_attempt_duration_seconds{task_id, task}    time spent in the task body per attempt
//	pewcron_launch_failures_total{task_id, task}       launches that exhausted their tries
//	pewcron_runs_total / pewcron_run_duration_seconds  scheduler invocations
//	pewcron_dispatch_errors_total                      tasks that could not be dispatched
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pewcron/internal/task/engine"
)

const namespace = "pewcron"

type Collector struct {
	gatherer prometheus.Gatherer

	decisions       *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	launchFailures  *prometheus.CounterVec

	runs           prometheus.Counter
	runDuration    prometheus.Histogram
	dispatchErrors prometheus.Counter
	lastRun        prometheus.Gauge
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector registers the metrics on reg. A nil reg gets a private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	taskLabels := []string{"task_id", "task"}
	c := &Collector{
		gatherer: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Dispatch decisions by task and outcome of the decision rules",
		}, append(taskLabels, "decision")),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Task body executions by outcome",
		}, append(taskLabels, "outcome")),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Time spent in the task body per attempt",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, taskLabels),
		launchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_failures_total",
			Help:      "Launches that failed on every try",
		}, taskLabels),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scheduler invocations",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one scheduler invocation",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Tasks that could not be dispatched (configuration or storage errors)",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last scheduler invocation finished",
		}),
	}
	reg.MustRegister(
		c.decisions, c.attempts, c.attemptDuration, c.launchFailures,
		c.runs, c.runDuration, c.dispatchErrors, c.lastRun,
	)
	return c
}

func labels(t *engine.Task) []string {
	return []string{strconv.Itoa(t.ID), t.Options.Name}
}

func (c *Collector) Decided(t *engine.Task, d engine.Decision) {
	c.decisions.WithLabelValues(append(labels(t), d.String())...).Inc()
}

func (c *Collector) Attempted(t *engine.Task, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.attempts.WithLabelValues(append(labels(t), outcome)...).Inc()
	c.attemptDuration.WithLabelValues(labels(t)...).Observe(took.Seconds())
}

func (c *Collector) Finished(t *engine.Task, err error) {
	if err != nil {
		c.launchFailures.WithLabelValues(labels(t)...).Inc()
	}
}

// ObserveRun records one scheduler invocation.
func (c *Collector) ObserveRun(took time.Duration, dispatchErrors int, finished time.Time) {
	c.runs.Inc()
	c.runDuration.Observe(took.Seconds())
	c.dispatchErrors.Add(float64(dispatchErrors))
	c.lastRun.Set(float64(finished.Unix()))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
