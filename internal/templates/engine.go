// Package templates renders site pages. HTML pages are html/template files
// sharing a set of underscore-prefixed layouts and partials; Markdown pages
// are rendered with goldmark and wrapped in a layout. Output is optionally
// re-indented.
package templates

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

// DefaultLayout wraps Markdown pages that do not name a layout.
const DefaultLayout = "_layout.html"

// Options configures an Engine.
type Options struct {
	Pretty bool
	// Layout is the default layout for Markdown pages.
	Layout string
	// Data is exposed to every page as .Data.
	Data map[string]any
}

// PageData is the value templates execute against.
type PageData struct {
	// Page is the output path relative to the site root.
	Page  string
	Title string
	// Root is the relative prefix from the page back to the site root.
	Root    string
	Content template.HTML
	Meta    map[string]any
	Data    map[string]any
}

// Engine renders pages found under root.
type Engine struct {
	fs   afero.Fs
	root string
	opts Options
	md   goldmark.Markdown

	mu     sync.Mutex
	shared *template.Template
	sum    uint32
}

// NewEngine creates an engine for the templates directory root.
func NewEngine(fsys afero.Fs, root string, opts Options) *Engine {
	if opts.Layout == "" {
		opts.Layout = DefaultLayout
	}
	return &Engine{
		fs:   fsys,
		root: filepath.Clean(root),
		opts: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Typographer),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

// titleCase title-cases s in English. Casers are stateful, so each call gets
// its own.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func (e *Engine) funcs() template.FuncMap {
	return template.FuncMap{
		"title": titleCase,
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"markdown": func(s string) (template.HTML, error) {
			out, err := e.markdown([]byte(s))
			return template.HTML(out), err
		},
	}
}

// Transform renders every page and drops the shared templates.
func (e *Engine) Transform() pipeline.Transform {
	return pipeline.TransformFunc("templates", func(ctx context.Context, f *pipeline.File) ([]*pipeline.File, error) {
		if f.IsPartial() {
			return nil, nil
		}
		out, err := e.Render(ctx, f.Rel, f.Contents)
		if err != nil {
			return nil, err
		}
		f.Contents = out
		f.SetExt(".html")
		return []*pipeline.File{f}, nil
	})
}

// Render renders the page at rel, a slash path relative to the engine root.
func (e *Engine) Render(_ context.Context, rel string, src []byte) ([]byte, error) {
	set, err := e.sharedSet()
	if err != nil {
		return nil, err
	}

	page := strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
	data := &PageData{
		Page:  page,
		Title: defaultTitle(rel),
		Root:  strings.Repeat("../", strings.Count(rel, "/")),
		Meta:  map[string]any{},
		Data:  e.opts.Data,
	}

	var out []byte
	switch strings.ToLower(path.Ext(rel)) {
	case ".md", ".markdown":
		out, err = e.renderMarkdown(set, rel, src, data)
	default:
		out, err = e.renderTemplate(set, rel, src, data)
	}
	if err != nil {
		return nil, err
	}

	if e.opts.Pretty {
		return Pretty(out)
	}
	return out, nil
}

func (e *Engine) renderTemplate(set *template.Template, rel string, src []byte, data *PageData) ([]byte, error) {
	t, err := set.Clone()
	if err != nil {
		return nil, err
	}
	if _, err := t.New(rel).Parse(string(src)); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, rel, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) renderMarkdown(set *template.Template, rel string, src []byte, data *PageData) ([]byte, error) {
	meta, body, err := SplitFrontMatter(src)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		data.Meta = meta
	}
	if title, ok := meta["title"].(string); ok && title != "" {
		data.Title = title
	}

	content, err := e.markdown(body)
	if err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	data.Content = template.HTML(content)

	layout := e.opts.Layout
	named := false
	if v, ok := meta["layout"]; ok {
		switch l := v.(type) {
		case bool:
			if !l {
				return content, nil
			}
		case string:
			if l == "" || l == "none" {
				return content, nil
			}
			layout, named = l, true
		default:
			return nil, fmt.Errorf("front matter: layout must be a string, got %T", v)
		}
	}

	if set.Lookup(layout) == nil {
		if named {
			return nil, fmt.Errorf("layout %q not found", layout)
		}
		return content, nil
	}

	// The shared set is only ever cloned; executing it would forbid that.
	t, err := set.Clone()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layout, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) markdown(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.md.Convert(src, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sharedSet returns the parsed layouts and partials, reparsing them when any
// of them was added, removed or edited since the last call.
func (e *Engine) sharedSet() (*template.Template, error) {
	files, err := e.partials()
	if err != nil {
		return nil, err
	}

	h := crc32.New(crc32.MakeTable(crc32.Castagnoli))
	for _, p := range files {
		h.Write([]byte(p.name))
		h.Write([]byte{0})
		h.Write(p.src)
	}
	sum := h.Sum32()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared != nil && e.sum == sum {
		return e.shared, nil
	}

	set := template.New("").Funcs(e.funcs())
	for _, p := range files {
		if _, err := set.New(p.name).Parse(string(p.src)); err != nil {
			return nil, err
		}
	}
	e.shared, e.sum = set, sum
	return set, nil
}

type partial struct {
	name string
	src  []byte
}

func (e *Engine) partials() ([]partial, error) {
	var out []partial
	err := afero.Walk(e.fs, e.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == e.root {
				return filepath.SkipDir
			}
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if p != e.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(name, "_") || !isTemplateFile(name) {
			return nil
		}
		src, err := afero.ReadFile(e.fs, p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return err
		}
		out = append(out, partial{name: filepath.ToSlash(rel), src: src})
		return nil
	})
	if err != nil && err != filepath.SkipDir {
		return nil, fmt.Errorf("loading layouts: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func isTemplateFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".tmpl":
		return true
	}
	return false
}

func defaultTitle(rel string) string {
	base := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return titleCase(base)
}
