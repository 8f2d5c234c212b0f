package styles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Options configures a Compiler.
type Options struct {
	// OutputStyle is StyleExpanded or StyleCompressed.
	OutputStyle string
	// LoadPaths are searched for imports that are not found relative to
	// the importing file.
	LoadPaths  []string
	Autoprefix AutoprefixOptions
	// Warn receives @warn and @debug messages.
	Warn func(file string, line int, msg string)
}

// Compiler turns stylesheets into CSS. It is safe for concurrent use.
type Compiler struct {
	fs   afero.Fs
	opts Options
}

// NewCompiler creates a compiler that reads imports from fs.
func NewCompiler(fs afero.Fs, opts Options) *Compiler {
	if opts.OutputStyle == "" {
		opts.OutputStyle = StyleExpanded
	}
	return &Compiler{fs: fs, opts: opts}
}

// Options returns the compiler's configuration.
func (c *Compiler) Options() Options { return c.opts }

// Compile compiles src, which was read from path. The extension of path
// selects the syntax: .sass is indented, anything else is SCSS.
func (c *Compiler) Compile(path string, src []byte) ([]byte, error) {
	nodes, err := c.parseSource(path, string(src))
	if err != nil {
		return nil, err
	}

	sheet := &stylesheet{}
	e := &evaluator{c: c, sheet: sheet, imports: []string{filepath.Clean(path)}}
	root := newScope(nil)
	f := frame{out: &sheet.nodes}
	if err := e.evalNodes(nodes, root, f); err != nil {
		return nil, err
	}

	autoprefix(sheet, c.opts.Autoprefix, c.opts.OutputStyle)
	return []byte(render(sheet, c.opts.OutputStyle)), nil
}

// Prefix runs plain CSS through the autoprefixer and the output style.
func (c *Compiler) Prefix(path string, css []byte) ([]byte, error) {
	return c.Compile(strings.TrimSuffix(path, filepath.Ext(path))+".css", css)
}

func (c *Compiler) parseSource(path, src string) ([]node, error) {
	src = strings.TrimPrefix(src, "\ufeff")
	if strings.EqualFold(filepath.Ext(path), ".sass") {
		converted, err := indentedToSCSS(path, src)
		if err != nil {
			return nil, err
		}
		src = converted
	}
	return parse(path, src)
}

func (c *Compiler) load(path string) ([]node, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return c.parseSource(path, string(data))
}

// resolve finds the file an @import refers to, trying partials, the
// known extensions and index files, first next to the importing file and
// then in each load path.
func (c *Compiler) resolve(from, target string) (string, error) {
	dirs := []string{filepath.Dir(from)}
	dirs = append(dirs, c.opts.LoadPaths...)

	for _, dir := range dirs {
		base := filepath.Join(dir, filepath.FromSlash(target))
		for _, candidate := range importCandidates(base) {
			info, err := c.fs.Stat(candidate)
			if err == nil && !info.IsDir() {
				return filepath.Clean(candidate), nil
			}
			if err != nil && !os.IsNotExist(err) {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("can't find stylesheet to import: %q", target)
}

func importCandidates(base string) []string {
	dir, name := filepath.Split(base)
	partial := filepath.Join(dir, "_"+name)
	switch filepath.Ext(name) {
	case ".scss", ".sass", ".css":
		return []string{base, partial}
	}
	var out []string
	for _, ext := range []string{".scss", ".sass", ".css"} {
		out = append(out, base+ext, partial+ext)
	}
	for _, ext := range []string{".scss", ".sass"} {
		out = append(out, filepath.Join(base, "_index"+ext), filepath.Join(base, "index"+ext))
	}
	return out
}
