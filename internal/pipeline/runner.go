package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/glob"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/metrics"
)

// Event is published after a task run or an output removal.
type Event struct {
	Task   string
	Reload Reload
	// Paths lists the outputs that changed, relative to nothing in
	// particular; sinks map them onto URLs themselves.
	Paths  []string
	Errors []*errors.TaskError
}

// Notifier receives task events, typically the live reload hub.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Runner executes tasks against a filesystem.
type Runner struct {
	fs          afero.Fs
	logger      logging.Logger
	recorder    metrics.Recorder
	notifier    Notifier
	cache       *Cache
	concurrency int

	mu      sync.Mutex
	outputs map[string]map[string][]string // task -> source path -> outputs
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) { r.logger = l.WithComponent("pipeline") }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithNotifier sets the sink that hears about every task run.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithConcurrency bounds how many files of one task are processed at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner creates a runner over fs.
func NewRunner(fs afero.Fs, opts ...Option) *Runner {
	r := &Runner{
		fs:          fs,
		logger:      logging.Nop(),
		recorder:    metrics.NoopRecorder{},
		cache:       NewCache(),
		concurrency: 8,
		outputs:     make(map[string]map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fs returns the filesystem the runner reads and writes.
func (r *Runner) Fs() afero.Fs { return r.fs }

// Cache returns the runner's output cache.
func (r *Runner) Cache() *Cache { return r.cache }

// Logger returns the runner's logger.
func (r *Runner) Logger() logging.Logger { return r.logger }

// Recorder returns the runner's metrics recorder.
func (r *Runner) Recorder() metrics.Recorder { return r.recorder }

// Run executes task once. Failures of individual files are logged and
// collected in the result while the remaining files keep going; only
// problems that prevent the task from starting are returned as an error.
func (r *Runner) Run(ctx context.Context, task *Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := r.logger.With("task", task.Name)
	result := &Result{Task: task.Name}

	matches, err := glob.Expand(r.fs, task.Source)
	if err != nil {
		r.recorder.IncTaskResult(task.Name, metrics.ResultFailed)
		return nil, fmt.Errorf("task %s: expanding %s: %w", task.Name, task.Source, err)
	}
	result.Matched = len(matches)
	log.Debug(ctx, "Task started", "source", task.Source, "files", len(matches))

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(r.concurrency)
	for _, m := range matches {
		m := m
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			written, skipped, taskErr := r.processFile(ctx, task, m)

			mu.Lock()
			defer mu.Unlock()
			result.Written = append(result.Written, written...)
			result.Skipped += skipped
			if taskErr != nil {
				result.Errors = append(result.Errors, taskErr)
			}
		})
	}
	p.Wait()

	sort.Strings(result.Written)
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].File < result.Errors[j].File })
	result.Duration = time.Since(start)

	r.recorder.ObserveTaskDuration(task.Name, result.Duration)
	r.recorder.AddTaskFiles(task.Name, len(result.Written), result.Skipped)

	switch {
	case ctx.Err() != nil:
		r.recorder.IncTaskResult(task.Name, metrics.ResultCanceled)
		return result, ctx.Err()
	case len(result.Errors) == 0:
		r.recorder.IncTaskResult(task.Name, metrics.ResultSuccess)
	case len(result.Written) > 0:
		r.recorder.IncTaskResult(task.Name, metrics.ResultPartial)
	default:
		r.recorder.IncTaskResult(task.Name, metrics.ResultFailed)
	}

	log.Info(ctx, "Task finished",
		"files", result.Matched,
		"written", len(result.Written),
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"duration", result.Duration.String(),
	)

	if r.notifier != nil && (len(result.Written) > 0 || len(result.Errors) > 0) {
		r.notifier.Notify(ctx, Event{
			Task:   task.Name,
			Reload: task.Reload,
			Paths:  result.Written,
			Errors: result.Errors,
		})
	}

	return result, nil
}

func (r *Runner) processFile(ctx context.Context, task *Task, m glob.Match) ([]string, int, *errors.TaskError) {
	fail := func(err error) *errors.TaskError {
		te := errors.NewTaskError(task.Name, m.Path, err)
		r.logger.Error(ctx, err, "Task error", "task", task.Name, "file", m.Path)
		return te
	}

	data, err := afero.ReadFile(r.fs, m.Path)
	if err != nil {
		return nil, 0, fail(fmt.Errorf("reading source: %w", err))
	}
	mode := os.FileMode(0o644)
	if info, statErr := r.fs.Stat(m.Path); statErr == nil {
		mode = info.Mode().Perm() | 0o200
	}

	files := []*File{{Path: m.Path, Rel: m.Rel, Contents: data, Mode: mode}}
	for _, t := range task.Transforms {
		next := make([]*File, 0, len(files))
		for _, f := range files {
			out, err := t.Apply(ctx, f)
			if err != nil {
				return nil, 0, fail(fmt.Errorf("%s: %w", t.Name(), err))
			}
			next = append(next, out...)
		}
		files = next
		if len(files) == 0 {
			return nil, 0, nil
		}
	}

	var written []string
	skipped := 0
	outputs := make([]string, 0, len(files))
	for _, f := range files {
		dest := task.OutputPath(f)
		outputs = append(outputs, dest)
		if r.cache.Unchanged(r.fs, dest, f.Contents) {
			skipped++
			continue
		}
		if err := r.write(dest, f); err != nil {
			return written, skipped, fail(err)
		}
		written = append(written, dest)
	}
	r.remember(task.Name, m.Path, outputs)
	return written, skipped, nil
}

func (r *Runner) write(dest string, f *File) error {
	if err := r.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	mode := f.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := afero.WriteFile(r.fs, dest, f.Contents, mode); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	r.cache.Store(dest, f.Contents)
	return nil
}

func (r *Runner) remember(task, src string, outputs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bySource, ok := r.outputs[task]
	if !ok {
		bySource = make(map[string][]string)
		r.outputs[task] = bySource
	}
	bySource[filepath.Clean(src)] = outputs
}

// Outputs returns the outputs last produced from src by task.
func (r *Runner) Outputs(task, src string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outputs[task][filepath.Clean(src)]...)
}

// Remove deletes the outputs produced from a source file that no longer
// exists. Sources the runner never processed map to the same relative path
// under the destination.
func (r *Runner) Remove(ctx context.Context, task *Task, src string) ([]string, error) {
	key := filepath.Clean(src)

	r.mu.Lock()
	outputs, known := r.outputs[task.Name][key]
	delete(r.outputs[task.Name], key)
	r.mu.Unlock()

	if !known {
		rel, ok := glob.Rel(task.Source, src)
		if !ok {
			return nil, nil
		}
		outputs = []string{task.OutputPath(&File{Rel: rel})}
	}

	var removed []string
	for _, out := range outputs {
		r.cache.Forget(out)
		if err := r.fs.Remove(out); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("removing %s: %w", out, err)
		}
		removed = append(removed, out)
	}

	if len(removed) > 0 {
		r.logger.Info(ctx, "Removed stale outputs", "task", task.Name, "source", src, "outputs", len(removed))
		if r.notifier != nil {
			r.notifier.Notify(ctx, Event{Task: task.Name, Reload: task.Reload, Paths: removed})
		}
	}
	return removed, nil
}

// Forget drops everything the runner remembers about previous outputs.
func (r *Runner) Forget() {
	r.mu.Lock()
	r.outputs = make(map[string]map[string][]string)
	r.mu.Unlock()
	r.cache.Reset()
}
