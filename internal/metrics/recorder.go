// Package metrics records task and dev-server observations. The Recorder
// interface has a no-op implementation for one-shot builds and a Prometheus
// implementation that the dev server exposes over HTTP.
package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultPartial  ResultLabel = "partial"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for tasks, builds and live reload.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	AddTaskFiles(task string, written, skipped int)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome ResultLabel)
	SetReloadClients(n int)
	IncReloads(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)        {}
func (NoopRecorder) AddTaskFiles(string, int, int)            {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)       {}
func (NoopRecorder) IncBuildOutcome(ResultLabel)              {}
func (NoopRecorder) SetReloadClients(int)                     {}
func (NoopRecorder) IncReloads(string)                        {}
