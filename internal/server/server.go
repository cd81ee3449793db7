package server

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/metrics"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/trace"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/router"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/util"
)

//go:embed all:static
var staticFiles embed.FS

const defaultSubscriberBuffer = 8

// Options configures a Server. Stream is the template for every ingested
// stream; its Name is replaced per connection.
type Options struct {
	HTTPAddr         string
	IngestAddr       string
	Stream           stream.Config
	SubscriberBuffer int
	Tracer           trace.Tracer
	Logger           *slog.Logger
}

// Server accepts raw sensor streams over TCP and serves their frames over HTTP.
type Server struct {
	opts       Options
	logger     *slog.Logger
	registry   *Registry
	metrics    *metrics.Metrics
	mux        *http.ServeMux
	routesOnce sync.Once

	httpServer   *http.Server
	httpListener net.Listener
	ingest       net.Listener
	conns        sync.WaitGroup

	// State
	mu        sync.RWMutex
	running   bool
	startTime time.Time
	buildID   string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewServer creates a server. Nothing listens until Listen or Start.
func NewServer(opts Options) *Server {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		logger:   logger,
		registry: NewRegistry(),
		metrics:  metrics.New(),
		mux:      http.NewServeMux(),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0, // No read timeout for streaming connections
		WriteTimeout:      0, // No write timeout for streaming connections
	}
	return s
}

// Start listens and serves until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the HTTP and ingest listeners.
func (s *Server) Listen() error {
	var err error
	s.ingest, err = net.Listen("tcp", s.opts.IngestAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen for ingest on %s", s.opts.IngestAddr)
	}
	s.httpListener, err = net.Listen("tcp", s.opts.HTTPAddr)
	if err != nil {
		s.ingest.Close()
		return errors.Wrapf(err, "failed to listen for http on %s", s.opts.HTTPAddr)
	}
	return nil
}

// Serve runs the ingest accept loop and the HTTP server. It blocks until Stop.
func (s *Server) Serve() error {
	if s.ingest == nil || s.httpListener == nil {
		return errors.New("server is not listening")
	}

	s.mu.Lock()
	s.startTime = time.Now()
	s.buildID = GetBuildID()
	s.running = true
	s.mu.Unlock()

	go s.acceptLoop()
	cfg := s.StreamConfig()
	s.logger.Info("Server started", "http", s.httpListener.Addr().String(), "ingest", s.ingest.Addr().String(),
		"format", cfg.Format, "resolution", cfg.Resolution)

	err := s.httpServer.Serve(s.httpListener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down listeners, drops ingest connections and waits for them.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.ingest != nil {
		s.ingest.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", "error", err)
		if err := s.httpServer.Close(); err != nil {
			s.logger.Warn("HTTP server force close error", "error", err)
		}
	}
	if s.httpListener != nil {
		s.httpListener.Close()
	}
	s.conns.Wait()

	s.logger.Info("Server stopped")
	return nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.setupRoutes)
	return loggingMiddleware(s.logger, s.mux)
}

func (s *Server) setupRoutes() {
	routers := []router.Router{
		&router.APIRouter{},
		&router.StreamingRouter{},
		&router.MetricsRouter{},
		&router.PagesRouter{}, // Must be last as it includes root handler
	}
	for _, r := range routers {
		r.RegisterRoutes(s.mux, s)
	}
}

// StreamConfig returns the configuration applied to new ingest connections.
func (s *Server) StreamConfig() stream.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Stream
}

// SetStreamConfig replaces the configuration for new ingest connections.
// Streams already running keep theirs.
func (s *Server) SetStreamConfig(cfg stream.Config) {
	s.mu.Lock()
	s.opts.Stream = cfg
	s.mu.Unlock()
}

// HTTPAddr returns the bound HTTP address, or nil before Listen.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// IngestAddr returns the bound ingest address, or nil before Listen.
func (s *Server) IngestAddr() net.Addr {
	if s.ingest == nil {
		return nil
	}
	return s.ingest.Addr()
}

// Registry returns the live stream registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// ServerService interface implementations for handlers

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetUptime returns server uptime
func (s *Server) GetUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// GetBuildID returns build ID
func (s *Server) GetBuildID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildID
}

// GetVersion returns version info
func (s *Server) GetVersion() string {
	return BuildInfo.Version
}

func (s *Server) ListStreams() []handlers.StreamInfo {
	return s.registry.List()
}

func (s *Server) GetStream(key string) (*stream.Stream, string, bool) {
	return s.registry.Get(key)
}

func (s *Server) SubscriberBuffer() int {
	return s.opts.SubscriberBuffer
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// GetStaticFS returns static file system
func (s *Server) GetStaticFS() fs.FS {
	return staticFiles
}

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

func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lw.ResponseWriter.(http.Hijacker)
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
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", lw.status,
			"bytes", lw.length, "duration", time.Since(start), "remote", r.RemoteAddr)
	})
}
