// Package dev runs the development loop: an initial build, a watcher bound
// to every task's source glob, and the live reload server.
package dev

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/livereload"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/metrics"
	"github.com/conneroisu/sitepipe/internal/server"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// Options configures a Session.
type Options struct {
	SkipInitialBuild bool
	// Recorder, when it is a PrometheusRecorder, is also served on the
	// metrics endpoint.
	Recorder metrics.Recorder
	Logger   logging.Logger
}

// Session is one run of the development loop.
type Session struct {
	cfg       *config.Config
	opts      Options
	logger    logging.Logger
	hub       *livereload.Hub
	pipeline  *build.Pipeline
	rebuilder *Rebuilder
	watcher   *watcher.FileWatcher
	server    *server.Server
}

// NewSession wires the pipeline, watcher, hub and server for cfg on the
// operating system's filesystem.
func NewSession(cfg *config.Config, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	logger := opts.Logger

	hub := livereload.NewHub(livereload.WithLogger(logger), livereload.WithRecorder(opts.Recorder))
	notifier := livereload.NewNotifier(hub, cfg.Server.BaseDir)

	p, err := build.New(afero.NewOsFs(), cfg,
		build.WithLogger(logger),
		build.WithRecorder(opts.Recorder),
		build.WithNotifier(notifier),
	)
	if err != nil {
		return nil, err
	}

	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	for _, f := range Filters(cfg) {
		fw.AddFilter(f)
	}

	serverOpts := []server.Option{server.WithLogger(logger)}
	if prom, ok := opts.Recorder.(*metrics.PrometheusRecorder); ok {
		serverOpts = append(serverOpts, server.WithMetrics(prom.Handler()))
	}
	srv := server.New(server.Options{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		BaseDir: filepath.FromSlash(cfg.Server.BaseDir),
		Open:    cfg.Server.Open,
	}, hub, serverOpts...)

	s := &Session{
		cfg:       cfg,
		opts:      opts,
		logger:    logger.WithComponent("dev"),
		hub:       hub,
		pipeline:  p,
		rebuilder: NewRebuilder(p, notifier, logger),
		watcher:   fw,
		server:    srv,
	}
	fw.AddHandler(s.rebuilder.Handle)
	return s, nil
}

// Filters returns the watcher filters for cfg: hidden and editor files, the
// configured ignore globs and the output tree are never watched.
func Filters(cfg *config.Config) []watcher.FileFilter {
	return []watcher.FileFilter{
		watcher.NoHiddenFilter,
		watcher.NoEditorTempFilter,
		watcher.IgnoreFilter(cfg.Watch.Ignore),
		watcher.ExcludeDirFilter(filepath.FromSlash(cfg.Output)),
	}
}

// Server returns the session's HTTP server.
func (s *Session) Server() *server.Server { return s.server }

// Run builds, watches and serves until ctx is canceled. Task errors never
// end the session; only a server that cannot start does.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)

	if !s.opts.SkipInitialBuild {
		if _, err := s.pipeline.Build(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn(ctx, err, "Initial build finished with errors; watching anyway")
		}
	}

	for _, dir := range s.cfg.SourceDirs() {
		if err := s.watcher.AddNearest(filepath.FromSlash(dir)); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer func() {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(context.Background(), err, "Failed to stop file watcher")
		}
	}()
	s.logger.Info(ctx, "Watching sources", "dirs", len(s.watcher.WatchList()))

	if err := s.server.Start(ctx); err != nil {
		return errors.NewEnhancedError("Cannot start the dev server", err,
			errors.ServerStartError(err, &errors.SuggestionContext{Port: s.cfg.Server.Port}))
	}
	return nil
}
