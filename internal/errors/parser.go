package errors

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SassDiagnostic is a failure reported by an external Dart Sass process,
// located in the stylesheet that caused it.
type SassDiagnostic struct {
	File    string
	Line    int
	Column  int
	Message string
	// Context holds the source excerpt sass printed, with the marker lines.
	Context []string
}

func (d *SassDiagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
	}
	if d.File != "" {
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	}
	return d.Message
}

// Position implements Positioned.
func (d *SassDiagnostic) Position() (string, int, int) {
	return d.File, d.Line, d.Column
}

// Msg returns the message without its location.
func (d *SassDiagnostic) Msg() string {
	return d.Message
}

var (
	sassMessagePattern = regexp.MustCompile(`^Error: (.+)$`)
	// "  - 3:10  root stylesheet", "  stdin 3:10  root stylesheet" or
	// "  app/sass/_vars.scss 2:3  @use".
	sassFramePattern = regexp.MustCompile(`^\s+(\S+) (\d+):(\d+)\s+\S`)
	// Excerpt lines are drawn with box characters, or with | and , under
	// --no-unicode.
	sassExcerptPattern = regexp.MustCompile(`^\s*\d*\s*[│╷╵|,']`)
)

// ParseSassOutput extracts the first error from the stderr of a sass process
// that compiled file from stdin. The innermost stack frame gives the location;
// a frame naming stdin refers back to file.
func ParseSassOutput(file, output string) (*SassDiagnostic, bool) {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	var d *SassDiagnostic
	for _, line := range lines {
		if d == nil {
			if m := sassMessagePattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				d = &SassDiagnostic{File: file, Message: strings.TrimSuffix(m[1], ".")}
			}
			continue
		}

		if m := sassFramePattern.FindStringSubmatch(line); m != nil {
			if src := m[1]; src != "-" && src != "stdin" {
				d.File = filepath.FromSlash(src)
			}
			d.Line, _ = strconv.Atoi(m[2])
			d.Column, _ = strconv.Atoi(m[3])
			break
		}
		if sassExcerptPattern.MatchString(line) {
			d.Context = append(d.Context, strings.TrimRight(line, " "))
		}
	}
	return d, d != nil
}
