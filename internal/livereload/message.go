package livereload

import (
	"time"

	"github.com/conneroisu/sitepipe/internal/errors"
)

// Message types understood by the browser client.
const (
	TypeConnected = "connected"
	TypeReload    = "reload"
	TypeCSS       = "css"
	TypeError     = "error"
)

// Message is sent to every connected browser.
type Message struct {
	Type      string        `json:"type"`
	ID        string        `json:"id,omitempty"`
	Task      string        `json:"task,omitempty"`
	Paths     []string      `json:"paths,omitempty"`
	Errors    []ErrorDetail `json:"errors,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorDetail is one build failure shown in the browser overlay.
type ErrorDetail struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func errorDetails(errs []*errors.TaskError) []ErrorDetail {
	out := make([]ErrorDetail, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if msg == "" && e.Err != nil {
			msg = e.Err.Error()
		}
		out = append(out, ErrorDetail{
			File:    e.File,
			Line:    e.Line,
			Column:  e.Column,
			Message: msg,
		})
	}
	return out
}
