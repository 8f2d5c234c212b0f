// Package pipeline runs asset tasks: each task expands a source glob, passes
// every matched file through a chain of transforms and writes the results
// under a destination directory. Tasks are composed into builds with Series
// and Parallel steps.
package pipeline

import (
	"context"
	"os"
	"path"
	"strings"
)

// File is a file in flight through a task.
type File struct {
	// Path is where the file was read from. Generated files keep the
	// path of the source that produced them.
	Path string
	// Rel is the slash-separated output path relative to the task
	// destination. Transforms rename outputs by changing Rel.
	Rel      string
	Contents []byte
	Mode     os.FileMode
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	return &c
}

// Ext returns the extension of Rel including the dot.
func (f *File) Ext() string {
	return path.Ext(f.Rel)
}

// Base returns the last element of Rel.
func (f *File) Base() string {
	return path.Base(f.Rel)
}

// SetExt replaces the extension of Rel.
func (f *File) SetExt(ext string) {
	f.Rel = strings.TrimSuffix(f.Rel, path.Ext(f.Rel)) + ext
}

// IsPartial reports whether the file name starts with an underscore, the
// convention for layouts, partials and imports that are not emitted.
func (f *File) IsPartial() bool {
	return strings.HasPrefix(f.Base(), "_")
}

// Transform rewrites files flowing through a task. Returning no files drops
// the input; returning several fans it out.
type Transform interface {
	Name() string
	Apply(ctx context.Context, f *File) ([]*File, error)
}

type transformFunc struct {
	name string
	fn   func(ctx context.Context, f *File) ([]*File, error)
}

func (t transformFunc) Name() string { return t.name }

func (t transformFunc) Apply(ctx context.Context, f *File) ([]*File, error) {
	return t.fn(ctx, f)
}

// TransformFunc adapts fn into a named Transform.
func TransformFunc(name string, fn func(ctx context.Context, f *File) ([]*File, error)) Transform {
	return transformFunc{name: name, fn: fn}
}

// MapContents builds a Transform that rewrites contents one-to-one.
func MapContents(name string, fn func(ctx context.Context, f *File) ([]byte, error)) Transform {
	return TransformFunc(name, func(ctx context.Context, f *File) ([]*File, error) {
		out, err := fn(ctx, f)
		if err != nil {
			return nil, err
		}
		f.Contents = out
		return []*File{f}, nil
	})
}

// DropPartials is a Transform that removes files whose name starts with "_".
func DropPartials() Transform {
	return TransformFunc("drop-partials", func(_ context.Context, f *File) ([]*File, error) {
		if f.IsPartial() {
			return nil, nil
		}
		return []*File{f}, nil
	})
}
