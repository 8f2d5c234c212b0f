package styles

import (
	"context"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

// Transform compiles every stylesheet that is not a partial into a .css
// file. When external is set the stylesheet goes through it and the
// builtin compiler only adds prefixes.
func Transform(c *Compiler, external *SassCommand) pipeline.Transform {
	return pipeline.TransformFunc("sass", func(ctx context.Context, f *pipeline.File) ([]*pipeline.File, error) {
		if f.IsPartial() {
			return nil, nil
		}

		var (
			out []byte
			err error
		)
		if external != nil {
			out, err = external.Compile(ctx, f.Path, f.Contents)
			if err == nil && c.opts.Autoprefix.Enabled {
				out, err = c.Prefix(f.Path, out)
			}
		} else {
			out, err = c.Compile(f.Path, f.Contents)
		}
		if err != nil {
			return nil, err
		}

		f.Contents = out
		f.SetExt(".css")
		return []*pipeline.File{f}, nil
	})
}
