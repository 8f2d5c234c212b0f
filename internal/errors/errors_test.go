package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type posErr struct {
	file      string
	line, col int
	msg       string
}

func (p *posErr) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", p.file, p.line, p.col, p.msg)
}

func (p *posErr) Position() (string, int, int) { return p.file, p.line, p.col }
func (p *posErr) Msg() string                  { return p.msg }

func TestTaskErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *TaskError
		want string
	}{
		{
			name: "task file and position",
			err:  &TaskError{Task: "styles", File: "app/sass/main.scss", Line: 3, Column: 7, Message: "expected }"},
			want: "styles: app/sass/main.scss:3:7: expected }",
		},
		{
			name: "task and file",
			err:  &TaskError{Task: "images", File: "app/images/a.png", Message: "permission denied"},
			want: "images: app/images/a.png: permission denied",
		},
		{
			name: "task only falls back to cause",
			err:  &TaskError{Task: "clean", Err: stderrors.New("busy")},
			want: "clean: busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestNewTaskErrorExtractsPosition(t *testing.T) {
	cause := &posErr{file: "app/sass/_vars.scss", line: 12, col: 4, msg: "undefined variable $brand"}
	wrapped := fmt.Errorf("compile: %w", cause)

	te := NewTaskError("styles", "app/sass/main.scss", wrapped)

	assert.Equal(t, "app/sass/_vars.scss", te.File)
	assert.Equal(t, 12, te.Line)
	assert.Equal(t, 4, te.Column)
	assert.Equal(t, "undefined variable $brand", te.Message)
	assert.True(t, stderrors.Is(te, cause))
}

func TestCollectorConcurrentAdds(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(&TaskError{Task: fmt.Sprintf("t%d", i%3), File: fmt.Sprintf("f%02d", i), Message: "x"})
		}(i)
	}
	wg.Wait()

	assert.True(t, c.HasErrors())
	assert.Equal(t, 50, c.Len())

	errs := c.Errors()
	for i := 1; i < len(errs); i++ {
		prev, cur := errs[i-1], errs[i]
		assert.True(t, prev.Task < cur.Task || (prev.Task == cur.Task && prev.File <= cur.File))
	}

	c.Add(nil)
	assert.Equal(t, 50, c.Len())
}

func TestCollectorErr(t *testing.T) {
	c := NewCollector()
	assert.NoError(t, c.Err())

	c.Add(&TaskError{Task: "styles", Message: "a"})
	c.Add(&TaskError{Task: "scripts", Message: "b"})

	err := c.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "styles: a")
	assert.Contains(t, err.Error(), "scripts: b")
}

func TestEnhancedError(t *testing.T) {
	cause := stderrors.New("listen tcp :3000: bind: address already in use")
	err := NewEnhancedError("Failed to start dev server", cause, ServerStartError(cause, &SuggestionContext{Port: 3000}))

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Failed to start dev server: listen tcp"))
	assert.Contains(t, msg, "Suggestions:")
	assert.Contains(t, msg, "sitepipe watch --port 3001")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestConfigurationErrorSuggestions(t *testing.T) {
	s := ConfigurationError(`paths.styles: destination "dist/css" is outside the output directory "public"`, nil)
	titles := make([]string, 0, len(s))
	for _, sug := range s {
		titles = append(titles, sug.Title)
	}
	assert.Contains(t, titles, "Keep destinations under the output directory")
}

func TestSassCompilerErrorSuggestions(t *testing.T) {
	s := SassCompilerError(stderrors.New(`exec: "sass": executable file not found in $PATH`))
	require.Len(t, s, 2)
	assert.Equal(t, "Install Dart Sass", s[0].Title)
}

func TestFormatSuggestionsWithoutSuggestions(t *testing.T) {
	assert.Equal(t, "plain", FormatSuggestions("plain", nil))
}
