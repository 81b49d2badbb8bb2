package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/server/handlers"
	"github.com/babelcloud/gbox/packages/replay/internal/server/router"
	"github.com/babelcloud/gbox/packages/replay/internal/version"
	"github.com/pkg/errors"
)

// ReplayServer serves the replay trigger, ingest and status APIs
type ReplayServer struct {
	port       int
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger

	// Services
	replay   handlers.ReplayService
	ingestor handlers.Ingestor

	// State
	mu        sync.RWMutex
	running   bool
	startTime time.Time
	buildID   string // Store build ID at startup
	setupOnce sync.Once
}

// NewReplayServer creates a new replay server
func NewReplayServer(port int, replay handlers.ReplayService, ingestor handlers.Ingestor, logger *slog.Logger) *ReplayServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayServer{
		port:      port,
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "server"),
		replay:    replay,
		ingestor:  ingestor,
		startTime: time.Now(),
	}
}

// Handler returns the HTTP handler with all routes registered
func (s *ReplayServer) Handler() http.Handler {
	s.setupOnce.Do(s.setupRoutes)
	return loggingMiddleware(s.logger, s.mux)
}

// Start starts the server and blocks until it stops
func (s *ReplayServer) Start() error {
	// Set start time and build ID
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0, // No read timeout for ingest streams
		WriteTimeout:      0, // Saves may take a while to answer
		IdleTimeout:       0,
	}

	s.mu.Lock()
	s.startTime = time.Now()
	s.buildID = version.BuildID()
	s.httpServer = httpServer
	s.mu.Unlock()

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.port)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("Replay server listening", "port", s.port)

	err = httpServer.Serve(ln)
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "replay server failed")
	}
	return nil
}

// Stop stops the server. Buffering is stopped after any in-flight save finished.
func (s *ReplayServer) Stop() error {
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown error", "error", err)
			// Force close if graceful shutdown fails
			if err := httpServer.Close(); err != nil {
				s.logger.Warn("HTTP server force close error", "error", err)
			}
		}
	}

	if s.replay != nil {
		s.replay.StopBuffering()
	}

	s.logger.Info("Replay server stopped")
	return nil
}

// IsRunning returns whether the server is running
func (s *ReplayServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// setupRoutes sets up all HTTP routes
func (s *ReplayServer) setupRoutes() {
	routers := []router.Router{
		&router.APIRouter{},
		&router.ReplayRouter{},
		&router.MetricsRouter{},
	}

	// Register all routes
	for _, r := range routers {
		r.RegisterRoutes(s.mux, s)
	}
}

// ServerService interface implementations for handlers

// GetPort returns the server port
func (s *ReplayServer) GetPort() int {
	return s.port
}

// GetUptime returns server uptime
func (s *ReplayServer) GetUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// GetBuildID returns build ID
func (s *ReplayServer) GetBuildID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildID
}

// GetVersion returns version info
func (s *ReplayServer) GetVersion() string {
	return version.Version
}

func (s *ReplayServer) GetReplay() handlers.ReplayService { return s.replay }

func (s *ReplayServer) GetIngestor() handlers.Ingestor { return s.ingestor }

func (s *ReplayServer) GetLogger() *slog.Logger { return s.logger }

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.status = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lw.status == 0 {
		lw.status = http.StatusOK
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.length += n
	return n, err
}

func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("http.Hijacker interface is not supported")
	}
	return hj.Hijack()
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.status,
			"bytes", lw.length,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}
