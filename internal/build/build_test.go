package build

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

func sampleSite(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"app/templates/_layout.html":  `<html><head><title>{{ .Title }}</title></head><body>{{ .Content }}</body></html>`,
		"app/templates/index.html":    `<p>home</p>`,
		"app/templates/blog/first.md": "# First\n",
		"app/sass/main.scss":          "$c: red;\n.a { .b { color: $c; } }\n",
		"app/sass/_vars.scss":         "$x: 1px;\n",
		"app/css/plain.css":           "p { margin: 0 }\n",
		"app/js/app.js":               "console.log('hi')\n",
		"app/images/logo.svg":         "<svg></svg>",
		"app/images/notes.txt":        "not an image",
		"app/files/doc.png":           "png",
		"app/fonts/a.woff":            "woff",
		"app/fonts/nested/b.woff":     "nested fonts are not matched",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, name)
	require.NoError(t, err)
	return ok
}

func TestNewTasksFollowsConfig(t *testing.T) {
	cfg := config.Default()
	tasks, err := NewTasks(afero.NewMemMapFs(), cfg, nil)
	require.NoError(t, err)

	require.Len(t, tasks, len(config.Categories()))
	for i, cat := range config.Categories() {
		m := cfg.Mapping(cat)
		assert.Equal(t, string(cat), tasks[i].Name)
		assert.Equal(t, m.Src, tasks[i].Source)
		assert.Equal(t, filepath.FromSlash(m.Dest), tasks[i].Dest)
	}

	byName := make(map[string]*pipeline.Task)
	for _, task := range tasks {
		byName[task.Name] = task
	}
	assert.Equal(t, pipeline.ReloadInject, byName["styles"].Reload)
	assert.Equal(t, pipeline.ReloadFull, byName["templates"].Reload)
	assert.Equal(t, pipeline.ReloadNone, byName["fonts"].Reload)
	assert.Len(t, byName["styles"].Transforms, 1)
	assert.Empty(t, byName["css"].Transforms)
	assert.Empty(t, byName["images"].Transforms)
}

func TestNewTasksAddsMinifier(t *testing.T) {
	cfg := config.Default()
	cfg.Build.Minify = true
	tasks, err := NewTasks(afero.NewMemMapFs(), cfg, nil)
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, task := range tasks {
		counts[task.Name] = len(task.Transforms)
	}
	assert.Equal(t, map[string]int{
		"styles": 2, "css": 1, "templates": 2, "scripts": 1,
		"images": 0, "files": 0, "fonts": 0,
	}, counts)
}

func TestNewTasksRejectsSassBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Styles.Compiler = config.CompilerSass
	cfg.Styles.SassBinary = "rm"

	_, err := NewTasks(afero.NewMemMapFs(), cfg, nil)
	require.Error(t, err)
	var enhanced *errors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Contains(t, err.Error(), "compiler: builtin")
}

func TestBuildProducesEveryCategory(t *testing.T) {
	fs := sampleSite(t)
	p, err := New(fs, config.Default())
	require.NoError(t, err)

	report, err := p.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Errors().Len())

	assert.Contains(t, readFile(t, fs, "public/index.html"), "<p>home</p>")
	assert.Contains(t, readFile(t, fs, "public/blog/first.html"), `<h1 id="first">First</h1>`)
	assert.Contains(t, readFile(t, fs, "public/blog/first.html"), "<title>First</title>")
	assert.Contains(t, readFile(t, fs, "public/css/main.css"), ".a .b {\n  color: red;\n}")
	assert.Equal(t, "p { margin: 0 }\n", readFile(t, fs, "public/css/plain.css"))
	assert.Equal(t, "console.log('hi')\n", readFile(t, fs, "public/js/app.js"))
	assert.Equal(t, "<svg></svg>", readFile(t, fs, "public/images/logo.svg"))
	assert.Equal(t, "png", readFile(t, fs, "public/files/doc.png"))
	assert.Equal(t, "woff", readFile(t, fs, "public/fonts/a.woff"))

	assert.False(t, exists(t, fs, "public/_layout.html"), "layouts are not pages")
	assert.False(t, exists(t, fs, "public/css/_vars.css"), "partials are not emitted")
	assert.False(t, exists(t, fs, "public/images/notes.txt"))
	assert.False(t, exists(t, fs, "public/fonts/nested/b.woff"))

	assert.Len(t, report.Results(), len(config.Categories()))
	assert.Len(t, Summary(report), len(config.Categories()))
}

func TestBuildCleansFirst(t *testing.T) {
	fs := sampleSite(t)
	require.NoError(t, afero.WriteFile(fs, "public/stale.html", []byte("old"), 0o644))

	p, err := New(fs, config.Default())
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	assert.False(t, exists(t, fs, "public/stale.html"))
	assert.True(t, exists(t, fs, "public/index.html"))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev pipeline.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func TestRebuildRewritesEverythingAfterClean(t *testing.T) {
	fs := sampleSite(t)
	p, err := New(fs, config.Default())
	require.NoError(t, err)

	first, err := p.Build(context.Background())
	require.NoError(t, err)

	// The second clean empties the output and the runner's cache. If any
	// task overlapped the clean its outputs would be missing or skipped.
	second, err := p.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Written(), second.Written())
	for _, res := range second.Results() {
		assert.Zero(t, res.Skipped, res.Task)
		for _, out := range res.Written {
			assert.True(t, exists(t, fs, out), out)
		}
	}
}

func TestBuildCollectsErrorsAndKeepsGoing(t *testing.T) {
	fs := sampleSite(t)
	require.NoError(t, afero.WriteFile(fs, "app/sass/broken.scss", []byte(".a { color: red;\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "app/templates/bad.html", []byte(`{{ .Nope`), 0o644))

	notifier := &recordingNotifier{}
	p, err := New(fs, config.Default(), WithNotifier(notifier))
	require.NoError(t, err)

	report, err := p.Build(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, report.Errors().Len())

	styles, ok := report.Result("styles")
	require.True(t, ok)
	require.Len(t, styles.Errors, 1)
	assert.Equal(t, filepath.Join("app", "sass", "broken.scss"), styles.Errors[0].File)

	// The good files of both tasks were still written.
	assert.True(t, exists(t, fs, "public/css/main.css"))
	assert.True(t, exists(t, fs, "public/index.html"))
	assert.True(t, exists(t, fs, "public/js/app.js"))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Len(t, notifier.events, len(config.Categories()))
}

func TestRunSelectedTasks(t *testing.T) {
	fs := sampleSite(t)
	require.NoError(t, afero.WriteFile(fs, "public/keep.txt", []byte("x"), 0o644))

	p, err := New(fs, config.Default())
	require.NoError(t, err)

	report, err := p.Run(context.Background(), "sass", "fonts", "styles")
	require.NoError(t, err)

	assert.Len(t, report.Results(), 2)
	assert.True(t, exists(t, fs, "public/css/main.css"))
	assert.True(t, exists(t, fs, "public/fonts/a.woff"))
	assert.False(t, exists(t, fs, "public/index.html"))
	assert.True(t, exists(t, fs, "public/keep.txt"), "running tasks does not clean")
}

func TestRunUnknownTask(t *testing.T) {
	p, err := New(afero.NewMemMapFs(), config.Default())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "styles", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task bogus")
	assert.Contains(t, err.Error(), "known tasks: styles, css, templates")
}

func TestTaskAliases(t *testing.T) {
	p, err := New(afero.NewMemMapFs(), config.Default())
	require.NoError(t, err)

	tests := map[string]string{
		"minify":    "templates",
		"templates": "templates",
		" Sass ":    "styles",
		"js":        "scripts",
		"fonts":     "fonts",
	}
	for name, want := range tests {
		task, ok := p.Task(name)
		require.True(t, ok, name)
		assert.Equal(t, want, task.Name)
	}
	_, ok := p.Task("clean")
	assert.False(t, ok)
}

func TestAffected(t *testing.T) {
	p, err := New(afero.NewMemMapFs(), config.Default())
	require.NoError(t, err)

	names := func(paths ...string) []string {
		var out []string
		for _, task := range p.Affected(paths) {
			out = append(out, task.Name)
		}
		return out
	}

	assert.Equal(t, []string{"styles"}, names("app/sass/_vars.scss"))
	assert.Equal(t, []string{"styles", "templates"}, names("app/templates/_layout.html", "app/sass/main.scss"))
	assert.Equal(t, []string{"fonts"}, names(filepath.Join("app", "fonts", "a.woff")))
	assert.Empty(t, names("app/fonts/nested/b.woff", "README.md"))
}

func TestMinifiedBuild(t *testing.T) {
	fs := sampleSite(t)
	cfg := config.Default()
	cfg.Build.Minify = true

	p, err := New(fs, cfg)
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "p{margin:0}", readFile(t, fs, "public/css/plain.css"))
	assert.Equal(t, ".a .b{color:red}", readFile(t, fs, "public/css/main.css"))
}
