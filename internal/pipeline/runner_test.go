package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/logging"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func upper() Transform {
	return MapContents("upper", func(_ context.Context, f *File) ([]byte, error) {
		return bytes.ToUpper(f.Contents), nil
	})
}

func TestRunnerCopiesMatchedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"app/js/app.js":        "console.log(1)",
		"app/js/vendor/lib.js": "lib()",
		"app/css/site.css":     "body{}",
	})

	notifier := &recordingNotifier{}
	runner := NewRunner(fs, WithNotifier(notifier))
	task := &Task{Name: "scripts", Source: "app/js/**/*", Dest: "public/js", Reload: ReloadFull}

	res, err := runner.Run(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, []string{
		filepath.Join("public", "js", "app.js"),
		filepath.Join("public", "js", "vendor", "lib.js"),
	}, res.Written)
	assert.True(t, res.OK())
	assert.Equal(t, "lib()", readFile(t, fs, filepath.Join("public", "js", "vendor", "lib.js")))

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "scripts", events[0].Task)
	assert.Equal(t, ReloadFull, events[0].Reload)
	assert.Len(t, events[0].Paths, 2)
}

func TestRunnerAppliesTransformsAndRenames(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"app/sass/main.scss":  "a{}",
		"app/sass/_vars.scss": "$x: 1;",
	})

	rename := TransformFunc("to-css", func(_ context.Context, f *File) ([]*File, error) {
		f.SetExt(".css")
		return []*File{f}, nil
	})
	task := &Task{
		Name:       "styles",
		Source:     "app/sass/**/*.+(sass|scss)",
		Dest:       "public/css",
		Transforms: []Transform{DropPartials(), upper(), rename},
	}

	res, err := NewRunner(fs).Run(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join("public", "css", "main.css")}, res.Written)
	assert.Equal(t, "A{}", readFile(t, fs, filepath.Join("public", "css", "main.css")))
	exists, _ := afero.Exists(fs, filepath.Join("public", "css", "_vars.css"))
	assert.False(t, exists)
}

func TestRunnerKeepsGoingAfterFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"app/sass/good.scss": "ok",
		"app/sass/bad.scss":  "broken",
	})

	failing := MapContents("compile", func(_ context.Context, f *File) ([]byte, error) {
		if strings.Contains(string(f.Contents), "broken") {
			return nil, fmt.Errorf("unexpected token")
		}
		return f.Contents, nil
	})

	logs := logging.NewRecorder()
	notifier := &recordingNotifier{}
	runner := NewRunner(fs, WithLogger(logs), WithNotifier(notifier))
	task := &Task{Name: "styles", Source: "app/sass/*.scss", Dest: "public/css", Transforms: []Transform{failing}}

	res, err := runner.Run(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join("public", "css", "good.scss")}, res.Written)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "styles", res.Errors[0].Task)
	assert.Equal(t, filepath.Join("app", "sass", "bad.scss"), res.Errors[0].File)
	assert.Contains(t, res.Errors[0].Error(), "compile: unexpected token")

	var sawError bool
	for _, e := range logs.Entries() {
		if e.Level == logging.LevelError && e.Fields["task"] == "styles" {
			sawError = true
		}
	}
	assert.True(t, sawError)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Len(t, events[0].Errors, 1)
}

func TestRunnerSkipsUnchangedOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"app/images/a.png": "png-a",
		"app/images/b.png": "png-b",
	})

	notifier := &recordingNotifier{}
	runner := NewRunner(fs, WithNotifier(notifier))
	task := &Task{Name: "images", Source: "app/images/**/*.+(png|jpg)", Dest: "public/images"}

	first, err := runner.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, first.Written, 2)

	second, err := runner.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, second.Written)
	assert.Equal(t, 2, second.Skipped)

	writeFiles(t, fs, map[string]string{"app/images/b.png": "png-b2"})
	third, err := runner.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("public", "images", "b.png")}, third.Written)
	assert.Equal(t, 1, third.Skipped)

	assert.Len(t, notifier.all(), 2, "a run that writes nothing must not notify")
}

func TestRunnerRewritesDeletedOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"app/fonts/inter.woff2": "font"})

	runner := NewRunner(fs)
	task := &Task{Name: "fonts", Source: "app/fonts/*", Dest: "public/fonts"}

	_, err := runner.Run(context.Background(), task)
	require.NoError(t, err)
	require.NoError(t, fs.Remove(filepath.Join("public", "fonts", "inter.woff2")))

	res, err := runner.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, res.Written, 1)
}

func TestRunnerRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"app/sass/main.scss": "a{}"})

	rename := TransformFunc("to-css", func(_ context.Context, f *File) ([]*File, error) {
		f.SetExt(".css")
		return []*File{f}, nil
	})
	notifier := &recordingNotifier{}
	runner := NewRunner(fs, WithNotifier(notifier))
	task := &Task{Name: "styles", Source: "app/sass/**/*.scss", Dest: "public/css", Transforms: []Transform{rename}, Reload: ReloadInject}

	_, err := runner.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("public", "css", "main.css")}, runner.Outputs("styles", "app/sass/main.scss"))

	require.NoError(t, fs.Remove("app/sass/main.scss"))
	removed, err := runner.Remove(context.Background(), task, "app/sass/main.scss")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("public", "css", "main.css")}, removed)

	exists, _ := afero.Exists(fs, filepath.Join("public", "css", "main.css"))
	assert.False(t, exists)
	assert.Len(t, notifier.all(), 2)
}

func TestRunnerRemoveUnknownSourceUsesRelativePath(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"public/images/old.png": "x"})

	runner := NewRunner(fs)
	task := &Task{Name: "images", Source: "app/images/**/*.png", Dest: "public/images"}

	removed, err := runner.Remove(context.Background(), task, "app/images/old.png")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("public", "images", "old.png")}, removed)
}

func TestRunnerRejectsInvalidTask(t *testing.T) {
	runner := NewRunner(afero.NewMemMapFs())

	_, err := runner.Run(context.Background(), &Task{Name: "x", Source: "app/[", Dest: "public"})
	assert.Error(t, err)

	_, err = runner.Run(context.Background(), &Task{Name: "x", Source: "app/*", Dest: ""})
	assert.Error(t, err)
}

func TestRunnerFanOut(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"app/css/site.css": "body{}"})

	withMap := TransformFunc("sourcemap", func(_ context.Context, f *File) ([]*File, error) {
		m := f.Clone()
		m.Rel = f.Rel + ".map"
		m.Contents = []byte("{}")
		return []*File{f, m}, nil
	})
	task := &Task{Name: "css", Source: "app/css/*.css", Dest: "public/css", Transforms: []Transform{withMap}}

	res, err := NewRunner(fs).Run(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, res.Written, 2)
	assert.Equal(t, "{}", readFile(t, fs, filepath.Join("public", "css", "site.css.map")))
}

func TestReloadParsing(t *testing.T) {
	for _, r := range []Reload{ReloadNone, ReloadFull, ReloadInject} {
		parsed, err := ParseReload(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseReload("sometimes")
	assert.Error(t, err)
}
