package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"github.com/conneroisu/sitepipe/internal/errors"
)

// Step is one node of a build graph.
type Step interface {
	Name() string
	Run(ctx context.Context) error
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (s stepFunc) Name() string                  { return s.name }
func (s stepFunc) Run(ctx context.Context) error { return s.fn(ctx) }

// StepFunc adapts fn into a named Step.
func StepFunc(name string, fn func(ctx context.Context) error) Step {
	return stepFunc{name: name, fn: fn}
}

type series struct{ steps []Step }

// Series runs steps one after another and stops at the first error.
func Series(steps ...Step) Step {
	return series{steps: steps}
}

func (s series) Name() string { return "series(" + joinNames(s.steps) + ")" }

func (s series) Run(ctx context.Context) error {
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

type parallel struct{ steps []Step }

// Parallel runs steps concurrently and waits for all of them. A failing step
// does not cancel its siblings; every error is returned combined.
func Parallel(steps ...Step) Step {
	return parallel{steps: steps}
}

func (p parallel) Name() string { return "parallel(" + joinNames(p.steps) + ")" }

func (p parallel) Run(ctx context.Context) error {
	ep := pool.New().WithErrors()
	for _, step := range p.steps {
		step := step
		ep.Go(func() error {
			if err := step.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", step.Name(), err)
			}
			return nil
		})
	}
	return ep.Wait()
}

func joinNames(steps []Step) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return strings.Join(names, ", ")
}

// Report gathers the results of every task a build ran.
type Report struct {
	mu        sync.Mutex
	results   map[string]*Result
	collector *errors.Collector
	Started   time.Time
	Duration  time.Duration
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		results:   make(map[string]*Result),
		collector: errors.NewCollector(),
		Started:   time.Now(),
	}
}

// Add records a task result.
func (r *Report) Add(res *Result) {
	if res == nil {
		return
	}
	r.mu.Lock()
	r.results[res.Task] = res
	r.mu.Unlock()
	for _, e := range res.Errors {
		r.collector.Add(e)
	}
}

// Result returns the result recorded for task.
func (r *Report) Result(task string) (*Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[task]
	return res, ok
}

// Results returns every recorded result ordered by task name.
func (r *Report) Results() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Result, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

// Errors returns the collected file errors.
func (r *Report) Errors() *errors.Collector {
	return r.collector
}

// Written counts files written across all tasks.
func (r *Report) Written() int {
	n := 0
	for _, res := range r.Results() {
		n += len(res.Written)
	}
	return n
}

// TaskStep wraps a task run as a Step, recording its result in report.
func TaskStep(runner *Runner, task *Task, report *Report) Step {
	return StepFunc(task.Name, func(ctx context.Context) error {
		res, err := runner.Run(ctx, task)
		if report != nil {
			report.Add(res)
		}
		return err
	})
}

// CleanStep removes dir and everything in it, then forgets the runner's
// cached outputs since none of them exist any more.
func CleanStep(runner *Runner, dir string) Step {
	return StepFunc("clean", func(ctx context.Context) error {
		return Clean(ctx, runner, dir)
	})
}

// Clean removes the output directory. A missing directory is not an error.
func Clean(ctx context.Context, runner *Runner, dir string) error {
	clean := filepath.Clean(dir)
	if clean == "." || clean == string(filepath.Separator) || clean == ".." {
		return fmt.Errorf("refusing to remove %q", dir)
	}

	fs := runner.Fs()
	if _, err := fs.Stat(clean); err != nil {
		if os.IsNotExist(err) {
			runner.Forget()
			return nil
		}
		return err
	}
	if err := fs.RemoveAll(clean); err != nil {
		return fmt.Errorf("removing %s: %w", clean, err)
	}
	runner.Forget()
	runner.Logger().Info(ctx, "Cleaned output directory", "dir", clean)
	return nil
}

// Combine merges step errors with collected task errors.
func Combine(stepErr error, report *Report) error {
	if report == nil {
		return stepErr
	}
	return multierr.Append(stepErr, report.Errors().Err())
}
