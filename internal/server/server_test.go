package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/livereload"
	"github.com/conneroisu/sitepipe/internal/metrics"
)

func newTestServer(t *testing.T, hub *livereload.Hub, opts ...Option) *Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"public/index.html":      "<html><body><h1>Home</h1></body></html>",
		"public/about.html":      "<html><body>About</body></html>",
		"public/css/main.css":    "body{color:red}",
		"public/docs/guide.html": "<p>Guide</p>",
		"public/docs/b.txt":      "bee",
		"public/docs/.hidden":    "x",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	require.NoError(t, fs.MkdirAll("public/docs/sub", 0o755))

	return New(Options{Host: "127.0.0.1", Port: 0, BaseDir: "public"}, hub, append([]Option{WithFs(fs)}, opts...)...)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStaticFiles(t *testing.T) {
	s := newTestServer(t, livereload.NewHub())
	tag := `<script src="` + livereload.ScriptPath + `"></script>`

	tests := []struct {
		name        string
		target      string
		status      int
		contentType string
		body        string
		contains    []string
	}{
		{
			name:        "index injected",
			target:      "/",
			status:      http.StatusOK,
			contentType: "text/html; charset=utf-8",
			body:        "<html><body><h1>Home</h1>" + tag + "</body></html>",
		},
		{
			name:        "pretty url",
			target:      "/about",
			status:      http.StatusOK,
			contentType: "text/html; charset=utf-8",
			body:        "<html><body>About" + tag + "</body></html>",
		},
		{
			name:        "stylesheet untouched",
			target:      "/css/main.css",
			status:      http.StatusOK,
			contentType: "text/css; charset=utf-8",
			body:        "body{color:red}",
		},
		{
			name:        "fragment gets script appended",
			target:      "/docs/guide.html",
			status:      http.StatusOK,
			contentType: "text/html; charset=utf-8",
			body:        "<p>Guide</p>" + tag,
		},
		{
			name:     "directory listing",
			target:   "/docs/",
			status:   http.StatusOK,
			contains: []string{"Index of /docs/", `href="/docs/sub/"`, `href="/docs/b.txt"`, "3 B", tag},
		},
		{
			name:     "not found",
			target:   "/missing.html",
			status:   http.StatusNotFound,
			contains: []string{"/missing.html not found", tag},
		},
		{
			name:     "traversal stays inside",
			target:   "/../../etc/passwd",
			status:   http.StatusNotFound,
			contains: []string{"not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			}
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			for _, c := range tt.contains {
				assert.Contains(t, rec.Body.String(), c)
			}
		})
	}
}

func TestListingHidesDotfiles(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/docs/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), ".hidden")
}

func TestDirectoryRedirect(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/docs")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/docs/", rec.Header().Get("Location"))
}

func TestNoInjectionWithoutHub(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/")
	assert.Equal(t, "<html><body><h1>Home</h1></body></html>", rec.Body.String())

	rec = get(t, s, livereload.ScriptPath)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoCacheHeaders(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s, "/css/main.css")
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-cache")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, livereload.NewHub())
	rec := get(t, s, HealthPath)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "public", body["base_dir"])
	assert.Equal(t, float64(0), body["clients"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.NewPrometheusRecorder(nil)
	rec.ObserveTaskDuration("styles", 10*time.Millisecond)

	s := newTestServer(t, nil, WithMetrics(rec.Handler()))
	res := get(t, s, MetricsPath)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "sitepipe_task_duration_seconds")
}

func TestLiveReloadScriptServed(t *testing.T) {
	s := newTestServer(t, livereload.NewHub())
	rec := get(t, s, livereload.ScriptPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), livereload.SocketPath)
}

func TestStartAndShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	res, err := http.Get(s.URL() + "/css/main.css")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "body{color:red}", string(body))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartFailsOnBusyPort(t *testing.T) {
	first := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = first.Start(ctx) }()
	<-first.Ready()

	_, portStr, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	second := New(Options{Host: "127.0.0.1", Port: port, BaseDir: "public"}, nil, WithFs(afero.NewMemMapFs()))
	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "2.0 MiB", formatSize(2*1024*1024))
}

func TestPages(t *testing.T) {
	tests := []struct {
		name     string
		render   func() string
		contains []string
		excludes []string
	}{
		{
			name: "listing escapes names and links",
			render: func() string {
				var b strings.Builder
				require.NoError(t, listingPage("/docs", []listingEntry{
					{Name: "sub", Dir: true},
					{Name: "<b>.txt", Size: 2048},
				}).Render(context.Background(), &b))
				return b.String()
			},
			contains: []string{
				"<title>Index of /docs/</title>",
				`<a href="../">../</a>`,
				`<a href="/docs/sub/">sub</a></td><td class="size"></td>`,
				`&lt;b&gt;.txt</a></td><td class="size">2.0 KiB</td>`,
				"<footer>sitepipe dev server</footer></body></html>",
			},
			excludes: []string{"<b>.txt"},
		},
		{
			name: "root listing has no parent link",
			render: func() string {
				var b strings.Builder
				require.NoError(t, listingPage("/", nil).Render(context.Background(), &b))
				return b.String()
			},
			contains: []string{"<h1>Index of /</h1><table></table>"},
			excludes: []string{`href="../"`},
		},
		{
			name: "not found",
			render: func() string {
				var b strings.Builder
				require.NoError(t, notFoundPage("/a&b.html").Render(context.Background(), &b))
				return b.String()
			},
			contains: []string{"<title>Not found</title>", "<h1>404: /a&amp;b.html not found</h1>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.render()
			assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, out, e)
			}
		})
	}
}
