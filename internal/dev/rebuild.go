package dev

import (
	"context"
	"sort"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/pipeline"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// Rebuilder turns batches of source changes into task runs.
type Rebuilder struct {
	pipeline *build.Pipeline
	notifier pipeline.Notifier
	logger   logging.Logger
}

// NewRebuilder creates a rebuilder. notifier may be nil; when set it is told
// about runs that wrote nothing so a browser showing an error can recover.
func NewRebuilder(p *build.Pipeline, notifier pipeline.Notifier, logger logging.Logger) *Rebuilder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Rebuilder{pipeline: p, notifier: notifier, logger: logger.WithComponent("dev")}
}

// Handle runs every task whose source glob matches a changed path, each one
// once per batch. Outputs of deleted sources are removed first. Task errors
// are reported to the browser rather than returned.
func (r *Rebuilder) Handle(ctx context.Context, events []watcher.ChangeEvent) error {
	events = watcher.Coalesce(events)
	if len(events) == 0 {
		return nil
	}

	paths := make([]string, 0, len(events))
	var gone []string
	for _, ev := range events {
		paths = append(paths, ev.Path)
		if ev.Gone() {
			gone = append(gone, ev.Path)
		}
	}

	tasks := r.pipeline.Affected(paths)
	if len(tasks) == 0 {
		r.logger.Debug(ctx, "Change matched no task", "paths", len(paths))
		return nil
	}

	runner := r.pipeline.Runner()
	for _, task := range tasks {
		for _, path := range gone {
			if !task.Matches(path) {
				continue
			}
			if _, err := runner.Remove(ctx, task, path); err != nil {
				r.logger.Warn(ctx, err, "Failed to remove stale output", "task", task.Name, "source", path)
			}
		}
	}

	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	sort.Strings(names)
	r.logger.Info(ctx, "Sources changed", "files", len(paths), "tasks", names)

	op := logging.StartOperation(r.logger, "rebuild")
	report := pipeline.NewReport()
	if err := r.pipeline.RunTasks(ctx, report, tasks...); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		op.EndWithError(ctx, err, "errors", report.Errors().Len())
	} else {
		op.End(ctx, "written", report.Written())
	}

	if r.notifier != nil {
		for _, res := range report.Results() {
			if res.OK() && len(res.Written) == 0 {
				r.notifier.Notify(ctx, pipeline.Event{Task: res.Task, Reload: pipeline.ReloadNone})
			}
		}
	}
	return nil
}
