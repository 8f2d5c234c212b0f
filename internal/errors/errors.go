// Package errors defines the error types produced while running pipeline
// tasks and the collector used to keep a build alive across failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// TaskError is a failure attributed to one task and, usually, one source file.
type TaskError struct {
	Task      string
	File      string
	Line      int
	Column    int
	Message   string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (te *TaskError) Error() string {
	loc := te.File
	if loc != "" && te.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", te.File, te.Line, te.Column)
	}

	msg := te.Message
	if msg == "" && te.Err != nil {
		msg = te.Err.Error()
	}

	switch {
	case te.Task != "" && loc != "":
		return fmt.Sprintf("%s: %s: %s", te.Task, loc, msg)
	case te.Task != "":
		return fmt.Sprintf("%s: %s", te.Task, msg)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, msg)
	default:
		return msg
	}
}

// Unwrap returns the underlying cause.
func (te *TaskError) Unwrap() error {
	return te.Err
}

// Positioned is implemented by errors that know where in a source file they
// happened, such as stylesheet syntax errors.
type Positioned interface {
	error
	Position() (file string, line, column int)
}

// NewTaskError builds a TaskError for task and file, pulling line and column
// out of err when it carries a position.
func NewTaskError(task, file string, err error) *TaskError {
	te := &TaskError{
		Task:      task,
		File:      file,
		Err:       err,
		Timestamp: time.Now(),
	}
	if err != nil {
		te.Message = err.Error()
	}

	var pos Positioned
	if stderrors.As(err, &pos) {
		f, line, col := pos.Position()
		if f != "" {
			te.File = f
		}
		te.Line = line
		te.Column = col
		te.Message = unwrapMessage(err)
	}
	return te
}

// unwrapMessage strips a positioned error down to its message without the
// "file:line:col:" prefix, which TaskError renders itself.
func unwrapMessage(err error) string {
	type messager interface{ Msg() string }
	var m messager
	if stderrors.As(err, &m) {
		return m.Msg()
	}
	return err.Error()
}

// Collector collects errors from concurrent tasks.
type Collector struct {
	errors []*TaskError
	mutex  sync.RWMutex
}

// NewCollector creates a new error collector
func NewCollector() *Collector {
	return &Collector{errors: make([]*TaskError, 0)}
}

// Add records a task error. Nil is ignored.
func (c *Collector) Add(err *TaskError) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	c.errors = append(c.errors, err)
}

// Errors returns a copy of the collected errors ordered by task then file.
func (c *Collector) Errors() []*TaskError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make([]*TaskError, len(c.errors))
	copy(result, c.errors)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Task != result[j].Task {
			return result[i].Task < result[j].Task
		}
		return result[i].File < result[j].File
	})
	return result
}

// HasErrors returns true if there are any errors
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.errors) > 0
}

// Len returns the number of collected errors.
func (c *Collector) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.errors)
}

// Err combines every collected error into one, or returns nil.
func (c *Collector) Err() error {
	var combined error
	for _, err := range c.Errors() {
		combined = multierr.Append(combined, err)
	}
	return combined
}

// Is, As and Join forward to the standard library so callers only import
// this package.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	New  = stderrors.New
	Join = stderrors.Join
)
