package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/glob"
)

// Reload says what a connected browser should do after a task writes files.
type Reload int

const (
	ReloadNone Reload = iota
	ReloadFull
	ReloadInject
)

// String returns the configuration spelling of r.
func (r Reload) String() string {
	switch r {
	case ReloadFull:
		return config.ReloadFull
	case ReloadInject:
		return config.ReloadInject
	default:
		return config.ReloadNone
	}
}

// ParseReload parses a configuration reload mode.
func ParseReload(s string) (Reload, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.ReloadFull:
		return ReloadFull, nil
	case config.ReloadInject:
		return ReloadInject, nil
	case config.ReloadNone, "":
		return ReloadNone, nil
	default:
		return ReloadNone, fmt.Errorf("unknown reload mode %q", s)
	}
}

// Task connects a source glob to a chain of transforms and a destination.
type Task struct {
	Name       string
	Category   config.Category
	Source     string
	Dest       string
	Transforms []Transform
	Reload     Reload
}

// Validate checks the task can run.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task has no name")
	}
	if t.Dest == "" {
		return fmt.Errorf("task %s: empty destination", t.Name)
	}
	if err := glob.Validate(t.Source); err != nil {
		return fmt.Errorf("task %s: %w", t.Name, err)
	}
	return nil
}

// Matches reports whether a source path belongs to this task.
func (t *Task) Matches(path string) bool {
	return glob.MatchPath(t.Source, path)
}

// OutputPath maps a transformed file to its location under Dest.
func (t *Task) OutputPath(f *File) string {
	return filepath.Join(t.Dest, filepath.FromSlash(f.Rel))
}

// Result summarizes one task run.
type Result struct {
	Task     string
	Matched  int
	Written  []string
	Skipped  int
	Errors   []*errors.TaskError
	Duration time.Duration
}

// OK reports whether the run had no file errors.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}
