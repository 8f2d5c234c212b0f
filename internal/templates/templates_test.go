package templates

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

const layout = `<!DOCTYPE html><html><head><title>{{.Title}}</title></head><body>{{.Content}}</body></html>`

func newSite(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMeta map[string]any
		wantBody string
		wantErr  bool
	}{
		{
			name:     "no front matter",
			input:    "# Title\n",
			wantBody: "# Title\n",
		},
		{
			name:     "front matter",
			input:    "---\ntitle: Hello\ntags: [a, b]\n---\nBody\n",
			wantMeta: map[string]any{"title": "Hello", "tags": []any{"a", "b"}},
			wantBody: "Body\n",
		},
		{
			name:     "empty front matter",
			input:    "---\n---\nBody\n",
			wantMeta: map[string]any{},
			wantBody: "Body\n",
		},
		{
			name:     "crlf",
			input:    "---\r\ntitle: Hi\r\n---\r\nBody",
			wantMeta: map[string]any{"title": "Hi"},
			wantBody: "Body",
		},
		{
			name:    "unterminated",
			input:   "---\ntitle: Hello\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			input:   "---\ntitle: [\n---\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, err := SplitFrontMatter([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeta, meta)
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestPretty(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fragment",
			input: "<ul><li>One</li><li>Two <em>2</em></li></ul>",
			want:  "<ul>\n  <li>One</li>\n  <li>Two <em>2</em></li>\n</ul>\n",
		},
		{
			name:  "document",
			input: "<!DOCTYPE html><html><head><title>Hi</title></head><body><p>x</p></body></html>",
			want: `<!DOCTYPE html>
<html>
  <head>
    <title>Hi</title>
  </head>
  <body>
    <p>x</p>
  </body>
</html>
`,
		},
		{
			name:  "collapses whitespace",
			input: "<p>\n   Hello\n   <b>world</b>\n</p>",
			want:  "<p>Hello <b>world</b></p>\n",
		},
		{
			name:  "void elements and attributes",
			input: `<div class="a&b"><hr><img src="x.png" alt="x"></div>`,
			want:  "<div class=\"a&amp;b\">\n  <hr>\n  <img src=\"x.png\" alt=\"x\">\n</div>\n",
		},
		{
			name:  "preformatted kept",
			input: "<div><pre>a\n  b</pre></div>",
			want:  "<div>\n  <pre>a\n  b</pre>\n</div>\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pretty([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestRenderTemplateWithPartials(t *testing.T) {
	fs := newSite(t, map[string]string{
		"app/templates/_header.html": `<h1>{{.Data.site}}</h1>`,
		"app/templates/index.html":   `{{template "_header.html" .}}<p>Hello {{.Data.site}} from {{.Page}}</p>`,
	})
	e := NewEngine(fs, "app/templates", Options{Data: map[string]any{"site": "Demo"}})

	src, err := afero.ReadFile(fs, "app/templates/index.html")
	require.NoError(t, err)
	out, err := e.Render(context.Background(), "index.html", src)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Demo</h1><p>Hello Demo from index.html</p>", string(out))
}

func TestRenderPicksUpEditedPartials(t *testing.T) {
	fs := newSite(t, map[string]string{
		"app/templates/_header.html": `<h1>Old</h1>`,
	})
	e := NewEngine(fs, "app/templates", Options{})
	page := []byte(`{{template "_header.html"}}`)

	out, err := e.Render(context.Background(), "index.html", page)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Old</h1>", string(out))

	require.NoError(t, afero.WriteFile(fs, "app/templates/_header.html", []byte(`<h1>New</h1>`), 0o644))
	out, err = e.Render(context.Background(), "index.html", page)
	require.NoError(t, err)
	assert.Equal(t, "<h1>New</h1>", string(out))
}

func TestRenderMarkdownInLayout(t *testing.T) {
	fs := newSite(t, map[string]string{
		"app/templates/_layout.html": layout,
	})
	e := NewEngine(fs, "app/templates", Options{Pretty: true})

	src := "---\ntitle: About us\n---\n# Heading\n\nSome *text*.\n"
	out, err := e.Render(context.Background(), "about.md", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html>
<html>
  <head>
    <title>About us</title>
  </head>
  <body>
    <h1 id="heading">Heading</h1>
    <p>Some <em>text</em>.</p>
  </body>
</html>
`, string(out))
}

func TestRenderMarkdownLayouts(t *testing.T) {
	fs := newSite(t, map[string]string{
		"app/templates/layouts/_post.html": `<article data-root="{{.Root}}">{{.Content}}</article>`,
	})
	e := NewEngine(fs, "app/templates", Options{})
	ctx := context.Background()

	t.Run("named layout", func(t *testing.T) {
		out, err := e.Render(ctx, "blog/post.md", []byte("---\nlayout: layouts/_post.html\n---\nHi\n"))
		require.NoError(t, err)
		assert.Equal(t, "<article data-root=\"../\"><p>Hi</p>\n</article>", string(out))
	})

	t.Run("missing default layout renders bare content", func(t *testing.T) {
		out, err := e.Render(ctx, "plain.md", []byte("Hi\n"))
		require.NoError(t, err)
		assert.Equal(t, "<p>Hi</p>\n", string(out))
	})

	t.Run("missing named layout fails", func(t *testing.T) {
		_, err := e.Render(ctx, "x.md", []byte("---\nlayout: _nope.html\n---\nHi\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `layout "_nope.html" not found`)
	})

	t.Run("layout disabled", func(t *testing.T) {
		out, err := e.Render(ctx, "x.md", []byte("---\nlayout: false\n---\nHi\n"))
		require.NoError(t, err)
		assert.Equal(t, "<p>Hi</p>\n", string(out))
	})
}

func TestRenderTitleDefaultsToFileName(t *testing.T) {
	e := NewEngine(afero.NewMemMapFs(), "app/templates", Options{})
	out, err := e.Render(context.Background(), "getting-started.html", []byte(`{{.Title}}|{{title "hello world"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Getting Started|Hello World", string(out))
}

func TestRenderTemplateError(t *testing.T) {
	e := NewEngine(afero.NewMemMapFs(), "app/templates", Options{})
	_, err := e.Render(context.Background(), "broken.html", []byte(`{{.Title`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.html")
}

func TestTransform(t *testing.T) {
	fs := newSite(t, map[string]string{
		"app/templates/_layout.html": layout,
	})
	tr := NewEngine(fs, "app/templates", Options{}).Transform()
	assert.Equal(t, "templates", tr.Name())

	out, err := tr.Apply(context.Background(), &pipeline.File{Path: "app/templates/_layout.html", Rel: "_layout.html", Contents: []byte(layout)})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = tr.Apply(context.Background(), &pipeline.File{Path: "app/templates/docs/intro.md", Rel: "docs/intro.md", Contents: []byte("Intro\n")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "docs/intro.html", out[0].Rel)
	assert.Contains(t, string(out[0].Contents), "<title>Intro</title>")
	assert.Contains(t, string(out[0].Contents), "<p>Intro</p>")
}
