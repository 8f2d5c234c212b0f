package build

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/glob"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/minify"
	"github.com/conneroisu/sitepipe/internal/pipeline"
	"github.com/conneroisu/sitepipe/internal/styles"
	"github.com/conneroisu/sitepipe/internal/templates"
)

// Aliases accepted wherever a task is named. "minify" is what the page task
// used to be called.
var taskAliases = map[string]config.Category{
	"minify": config.CategoryTemplates,
	"pages":  config.CategoryTemplates,
	"sass":   config.CategoryStyles,
	"js":     config.CategoryScripts,
}

// ResolveTask maps a task name or alias to its category.
func ResolveTask(name string) (config.Category, bool) {
	if config.IsCategory(name) {
		return config.Category(name), true
	}
	c, ok := taskAliases[name]
	return c, ok
}

// NewTasks builds one task per asset category, in build order.
func NewTasks(fs afero.Fs, cfg *config.Config, logger logging.Logger) ([]*pipeline.Task, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	var minifier pipeline.Transform
	if cfg.Build.Minify {
		minifier = minify.New().Transform()
	}
	withMinify := func(ts ...pipeline.Transform) []pipeline.Transform {
		if minifier != nil {
			ts = append(ts, minifier)
		}
		return ts
	}

	styleTransforms, err := styleTransforms(fs, cfg, logger)
	if err != nil {
		return nil, err
	}

	tasks := make([]*pipeline.Task, 0, len(config.Categories()))
	for _, cat := range config.Categories() {
		m := cfg.Mapping(cat)
		reload, err := pipeline.ParseReload(m.Reload)
		if err != nil {
			return nil, fmt.Errorf("paths.%s.reload: %w", cat, err)
		}

		task := &pipeline.Task{
			Name:     string(cat),
			Category: cat,
			Source:   m.Src,
			Dest:     filepath.FromSlash(m.Dest),
			Reload:   reload,
		}

		switch cat {
		case config.CategoryStyles:
			task.Transforms = withMinify(styleTransforms...)
		case config.CategoryTemplates:
			base, _ := glob.Split(m.Src)
			engine := templates.NewEngine(fs, filepath.FromSlash(base), templates.Options{
				Pretty: cfg.Templates.Pretty,
				Layout: cfg.Templates.Layout,
				Data:   cfg.Templates.Data,
			})
			task.Transforms = withMinify(engine.Transform())
		case config.CategoryCSS, config.CategoryScripts:
			task.Transforms = withMinify()
		default:
			// images, files and fonts are copied as they are
		}

		if err := task.Validate(); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func styleTransforms(fs afero.Fs, cfg *config.Config, logger logging.Logger) ([]pipeline.Transform, error) {
	log := logger.WithComponent("styles")
	compiler := styles.NewCompiler(fs, styles.Options{
		OutputStyle: cfg.Styles.OutputStyle,
		LoadPaths:   cfg.Styles.LoadPaths,
		Autoprefix: styles.AutoprefixOptions{
			Enabled: cfg.Styles.Autoprefix.Enabled,
			Grid:    cfg.Styles.Autoprefix.Grid,
			Cascade: cfg.Styles.Autoprefix.Cascade,
		},
		Warn: func(file string, line int, msg string) {
			log.Warn(context.Background(), nil, msg, "file", file, "line", line)
		},
	})

	if cfg.Styles.Compiler != config.CompilerSass {
		return []pipeline.Transform{styles.Transform(compiler, nil)}, nil
	}

	cmd, err := styles.NewSassCommand(cfg.Styles.SassBinary, cfg.Styles.LoadPaths, cfg.Styles.OutputStyle)
	if err == nil {
		_, err = exec.LookPath(cfg.Styles.SassBinary)
	}
	if err != nil {
		return nil, errors.NewEnhancedError("Cannot use the sass compiler", err, errors.SassCompilerError(err))
	}
	return []pipeline.Transform{styles.Transform(compiler, cmd)}, nil
}
