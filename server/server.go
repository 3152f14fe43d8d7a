// Package server - HTTP surface of the classification service.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/profiler"
)

//go:embed static
var staticFiles embed.FS

// Options configure a Server.
type Options struct {
	// Addr is the host:port to listen on.
	Addr string
	// MaxUploadBytes caps the request body of POST /predict.
	MaxUploadBytes int64
	// MaxImagePixels caps the declared width*height of an upload.
	MaxImagePixels int64
	// ShutdownTimeout bounds the graceful shutdown in Run.
	ShutdownTimeout time.Duration
	// CORSOrigins are the allowed origins. Empty disables CORS.
	CORSOrigins []string
	// MetricsPath exposes Prometheus metrics when non-empty.
	MetricsPath string
	// Logger receives request and error logs. Defaults to slog.Default().
	Logger *slog.Logger
	// Profiler records classification timings when set.
	Profiler *profiler.RuntimeProfiler
}

// Server serves the upload page and the prediction API.
type Server struct {
	engine  inference.Engine
	opts    Options
	logger  *slog.Logger
	metrics *Metrics
	router  *gin.Engine
}

// New creates a server. A nil engine starts the server degraded: every
// prediction fails with "Model is not loaded" and /health reports it.
//
// Arguments:
//   - engine: The loaded engine, or nil.
//   - opts: Listener, limits and middleware options.
//
// Returns:
//   - *Server: The server.
func New(engine inference.Engine, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = images.DefaultMaxPixels
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		engine:  engine,
		opts:    opts,
		logger:  opts.Logger,
		metrics: NewMetrics(),
	}
	s.metrics.SetModelLoaded(engine != nil)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.logger))
	r.Use(s.metrics.Middleware())
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.opts.CORSOrigins))
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	r.GET("/", s.indexHandler)
	r.StaticFS("/static", http.FS(static))
	r.POST("/predict", s.predictHandler)
	r.GET("/health", s.healthHandler)
	r.GET("/info", s.infoHandler)
	if s.opts.MetricsPath != "" {
		r.GET(s.opts.MetricsPath, gin.WrapH(s.metrics.Handler()))
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run serves until ctx is done, then shuts down gracefully within the
// configured timeout.
//
// Arguments:
//   - ctx: Cancelled to stop the server.
//
// Returns:
//   - error: A listen error, or the shutdown error.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("address", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", slog.Duration("timeout", s.opts.ShutdownTimeout))
	shutdownCtx := context.Background()
	if s.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.opts.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}
