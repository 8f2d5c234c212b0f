package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	taskDuration  *prom.HistogramVec
	taskResults   *prom.CounterVec
	filesWritten  *prom.CounterVec
	filesSkipped  *prom.CounterVec
	buildDuration prom.Histogram
	buildOutcome  *prom.CounterVec
	reloadClients prom.Gauge
	reloads       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the sitepipe metrics on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitepipe",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual pipeline task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepipe",
			Name:      "task_results_total",
			Help:      "Task run counts by outcome",
		}, []string{"task", "result"}),
		filesWritten: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepipe",
			Name:      "files_written_total",
			Help:      "Output files written per task",
		}, []string{"task"}),
		filesSkipped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepipe",
			Name:      "files_skipped_total",
			Help:      "Output files left untouched because their content was unchanged",
		}, []string{"task"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitepipe",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepipe",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitepipe",
			Name:      "livereload_clients",
			Help:      "Connected live reload clients",
		}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitepipe",
			Name:      "livereload_messages_total",
			Help:      "Live reload messages broadcast by kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		pr.taskDuration,
		pr.taskResults,
		pr.filesWritten,
		pr.filesSkipped,
		pr.buildDuration,
		pr.buildOutcome,
		pr.reloadClients,
		pr.reloads,
	)
	return pr
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the metrics live in.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) AddTaskFiles(task string, written, skipped int) {
	if written > 0 {
		p.filesWritten.WithLabelValues(task).Add(float64(written))
	}
	if skipped > 0 {
		p.filesSkipped.WithLabelValues(task).Add(float64(skipped))
	}
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome ResultLabel) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetReloadClients(n int) {
	p.reloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncReloads(kind string) {
	p.reloads.WithLabelValues(kind).Inc()
}
