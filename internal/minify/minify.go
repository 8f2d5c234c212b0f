// Package minify shrinks pipeline outputs by media type.
package minify

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	tdminify "github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

var mediaTypes = map[string]string{
	".css":  "text/css",
	".html": "text/html",
	".htm":  "text/html",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".json": "application/json",
	".svg":  "image/svg+xml",
}

// MediaType returns the media type minified for a file name, or "" when the
// extension is not handled.
func MediaType(name string) string {
	return mediaTypes[strings.ToLower(path.Ext(name))]
}

// Minifier minifies CSS, HTML, JavaScript, JSON and SVG.
type Minifier struct {
	m *tdminify.M
}

// New creates a Minifier. HTML keeps document and end tags so pretty
// printed pages and injected scripts stay well formed.
func New() *Minifier {
	m := tdminify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc("image/svg+xml", svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	m.AddFuncRegexp(regexp.MustCompile("[/+]json$"), json.Minify)
	return &Minifier{m: m}
}

// Bytes minifies data of the given media type.
func (m *Minifier) Bytes(mediaType string, data []byte) ([]byte, error) {
	out, err := m.m.Bytes(mediaType, data)
	if err != nil {
		return nil, fmt.Errorf("minifying %s: %w", mediaType, err)
	}
	return out, nil
}

// Transform minifies every file with a known extension and passes the rest
// through untouched.
func (m *Minifier) Transform() pipeline.Transform {
	return pipeline.MapContents("minify", func(_ context.Context, f *pipeline.File) ([]byte, error) {
		mt := MediaType(f.Rel)
		if mt == "" {
			return f.Contents, nil
		}
		return m.Bytes(mt, f.Contents)
	})
}
