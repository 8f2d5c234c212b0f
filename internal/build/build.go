// Package build assembles the asset tasks described by the configuration and
// runs them: the full build cleans the output tree and then runs every task
// in parallel, and individual tasks can be run on their own.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/metrics"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

// Pipeline owns the configured tasks and the runner that executes them.
type Pipeline struct {
	cfg    *config.Config
	runner *pipeline.Runner
	tasks  []*pipeline.Task
	byName map[string]*pipeline.Task
	logger logging.Logger
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger   logging.Logger
	recorder metrics.Recorder
	notifier pipeline.Notifier
}

// WithLogger sets the logger shared by the pipeline and its runner.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithNotifier sets the sink told about every task run.
func WithNotifier(n pipeline.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New creates a pipeline for cfg over fs.
func New(fs afero.Fs, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	o := options{logger: logging.Nop(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	runnerOpts := []pipeline.Option{
		pipeline.WithLogger(o.logger),
		pipeline.WithRecorder(o.recorder),
		pipeline.WithConcurrency(cfg.Build.Concurrency),
	}
	if o.notifier != nil {
		runnerOpts = append(runnerOpts, pipeline.WithNotifier(o.notifier))
	}

	tasks, err := NewTasks(fs, cfg, o.logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		runner: pipeline.NewRunner(fs, runnerOpts...),
		tasks:  tasks,
		byName: make(map[string]*pipeline.Task, len(tasks)),
		logger: o.logger.WithComponent("build"),
	}
	for _, t := range tasks {
		p.byName[t.Name] = t
	}
	return p, nil
}

// Tasks returns every task in build order.
func (p *Pipeline) Tasks() []*pipeline.Task {
	return append([]*pipeline.Task(nil), p.tasks...)
}

// Runner returns the runner executing the tasks.
func (p *Pipeline) Runner() *pipeline.Runner {
	return p.runner
}

// Task looks a task up by name or alias.
func (p *Pipeline) Task(name string) (*pipeline.Task, bool) {
	cat, ok := ResolveTask(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return nil, false
	}
	t, ok := p.byName[string(cat)]
	return t, ok
}

// Select resolves names to tasks, dropping duplicates and keeping build
// order.
func (p *Pipeline) Select(names []string) ([]*pipeline.Task, error) {
	want := make(map[string]bool, len(names))
	var unknown []string
	for _, name := range names {
		t, ok := p.Task(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		want[t.Name] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown task %s; known tasks: %s",
			strings.Join(unknown, ", "), strings.Join(p.names(), ", "))
	}

	selected := make([]*pipeline.Task, 0, len(want))
	for _, t := range p.tasks {
		if want[t.Name] {
			selected = append(selected, t)
		}
	}
	return selected, nil
}

func (p *Pipeline) names() []string {
	names := make([]string, len(p.tasks))
	for i, t := range p.tasks {
		names[i] = t.Name
	}
	return names
}

// Affected returns the tasks whose source glob matches any of paths.
func (p *Pipeline) Affected(paths []string) []*pipeline.Task {
	var out []*pipeline.Task
	for _, t := range p.tasks {
		for _, path := range paths {
			if t.Matches(path) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Graph returns the full build: clean, then every task in parallel.
func (p *Pipeline) Graph(report *pipeline.Report) pipeline.Step {
	steps := make([]pipeline.Step, len(p.tasks))
	for i, t := range p.tasks {
		steps[i] = pipeline.TaskStep(p.runner, t, report)
	}
	return pipeline.Series(
		pipeline.CleanStep(p.runner, filepath.FromSlash(p.cfg.Output)),
		pipeline.Parallel(steps...),
	)
}

// Build runs the full build. The report is returned even when the build
// fails; the error combines step failures and every collected file error.
func (p *Pipeline) Build(ctx context.Context) (*pipeline.Report, error) {
	report := pipeline.NewReport()
	err := p.Graph(report).Run(ctx)
	return p.finish(ctx, "build", report, err)
}

// Run runs the named tasks in parallel without cleaning first.
func (p *Pipeline) Run(ctx context.Context, names ...string) (*pipeline.Report, error) {
	tasks, err := p.Select(names)
	if err != nil {
		return nil, err
	}
	report := pipeline.NewReport()
	err = p.RunTasks(ctx, report, tasks...)
	return p.finish(ctx, "run", report, err)
}

// RunTasks runs tasks in parallel, recording into report.
func (p *Pipeline) RunTasks(ctx context.Context, report *pipeline.Report, tasks ...*pipeline.Task) error {
	steps := make([]pipeline.Step, len(tasks))
	for i, t := range tasks {
		steps[i] = pipeline.TaskStep(p.runner, t, report)
	}
	return pipeline.Parallel(steps...).Run(ctx)
}

// Clean removes the output tree.
func (p *Pipeline) Clean(ctx context.Context) error {
	return pipeline.Clean(ctx, p.runner, filepath.FromSlash(p.cfg.Output))
}

func (p *Pipeline) finish(ctx context.Context, op string, report *pipeline.Report, stepErr error) (*pipeline.Report, error) {
	report.Duration = time.Since(report.Started)
	err := pipeline.Combine(stepErr, report)

	rec := p.runner.Recorder()
	rec.ObserveBuildDuration(report.Duration)
	switch {
	case ctx.Err() != nil:
		rec.IncBuildOutcome(metrics.ResultCanceled)
	case err == nil:
		rec.IncBuildOutcome(metrics.ResultSuccess)
	default:
		rec.IncBuildOutcome(metrics.ResultFailed)
	}

	fields := []interface{}{
		"tasks", len(report.Results()),
		"written", report.Written(),
		"errors", report.Errors().Len(),
		"duration", report.Duration.Round(time.Millisecond).String(),
	}
	if err != nil {
		p.logger.Error(ctx, err, "Finished "+op+" with errors", fields...)
	} else {
		p.logger.Info(ctx, "Finished "+op, fields...)
	}
	return report, err
}

// Summary renders one line per task result, ordered by name.
func Summary(report *pipeline.Report) []string {
	results := report.Results()
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%-10s %3d written %3d unchanged %3d errors  %s",
			r.Task, len(r.Written), r.Skipped, len(r.Errors), r.Duration.Round(time.Millisecond)))
	}
	return lines
}
