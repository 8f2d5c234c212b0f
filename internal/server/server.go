// Package server is the development HTTP server. It serves the built site
// with the live reload client injected into every HTML page, and exposes
// health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"

	"github.com/conneroisu/sitepipe/internal/livereload"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/validation"
	"github.com/conneroisu/sitepipe/internal/version"
)

// Internal endpoints.
const (
	HealthPath  = "/__sitepipe/health"
	MetricsPath = "/__sitepipe/metrics"
)

// Options configures the server.
type Options struct {
	Host    string
	Port    int
	BaseDir string
	Open    bool
}

// Server serves BaseDir with live reload.
type Server struct {
	opts    Options
	fs      afero.Fs
	hub     *livereload.Hub
	metrics http.Handler
	logger  logging.Logger
	router  chi.Router
	started time.Time

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener
	ready       chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithFs serves from fs instead of the operating system's filesystem. The
// base directory is resolved inside it.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

// WithMetrics mounts h at the metrics endpoint.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the server's logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l.WithComponent("server") }
}

// New creates a server. hub may be nil to serve without live reload.
func New(opts Options, hub *livereload.Hub, options ...Option) *Server {
	s := &Server{
		opts:    opts,
		fs:      afero.NewOsFs(),
		hub:     hub,
		logger:  logging.Nop(),
		started: time.Now(),
		ready:   make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}
	s.fs = afero.NewReadOnlyFs(afero.NewBasePathFs(s.fs, opts.BaseDir))
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(HealthPath, s.handleHealth)
	if s.metrics != nil {
		r.Handle(MetricsPath, s.metrics)
	}
	if s.hub != nil {
		r.Get(livereload.SocketPath, s.hub.ServeHTTP)
		r.Get(livereload.ScriptPath, livereload.ScriptHandler().ServeHTTP)
	}

	r.With(middleware.NoCache).Get("/*", s.handleStatic)
	r.With(middleware.NoCache).Head("/*", s.handleStatic)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Addr returns the address the server listens on, once it does.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	}
	return s.listener.Addr().String()
}

// URL returns the site's base URL.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start listens and serves until ctx is canceled, then shuts down
// gracefully. Port 0 picks a free port; Addr reports it.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.serverMutex.Lock()
	s.httpServer = srv
	s.listener = ln
	s.serverMutex.Unlock()
	close(s.ready)

	s.logger.Info(ctx, "Serving", "url", s.URL(), "dir", s.opts.BaseDir)
	if s.opts.Open {
		go s.openBrowser(ctx, s.URL())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.logger.Info(context.Background(), "Server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.Clients()
	}
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"version":   version.GetShortVersion(),
		"base_dir":  s.opts.BaseDir,
		"clients":   clients,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "Refusing to open browser", "url", url)
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		s.logger.Warn(ctx, nil, "Cannot open a browser on this platform", "os", runtime.GOOS)
		return
	}
	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
		return
	}
	go func() { _ = cmd.Wait() }()
}
