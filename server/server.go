// Package server runs the HTTP listener for the scan endpoint and releases
// hardware through shutdown hooks when it stops.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// ScanPath is the only route served.
const ScanPath = "/scan"

// State is the lifecycle state of a Server.
type State int32

const (
	Starting State = iota
	Listening
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Config holds the server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type hook struct {
	name string
	fn   func() error
}

// Server serves GET /scan and runs shutdown hooks once it stops.
type Server struct {
	config     Config
	log        *zap.Logger
	httpServer *http.Server
	state      atomic.Int32

	mu       sync.Mutex
	hooks    []hook
	addr     net.Addr
	listened chan struct{}
}

// New creates a Server routing GET /scan to scan.
func New(config Config, scan http.Handler, log *zap.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:   config,
		log:      log,
		listened: make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:  NewRouter(scan),
		ErrorLog: zap.NewStdLog(log),
	}
	return s
}

// NewRouter exposes scan on GET /scan with cross-origin access allowed.
func NewRouter(scan http.Handler) http.Handler {
	r := mux.NewRouter()
	r.Handle(ScanPath, scan).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowedMethods:   []string{http.MethodGet},
		AllowedHeaders:   []string{"X-Requested-With", "Content-Type"},
		ExposedHeaders:   []string{"X-Custom-Server-Header"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// OnShutdown registers fn to run after the HTTP server has stopped. Hooks
// run in registration order; a failing hook is logged and the rest still run.
func (s *Server) OnShutdown(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// State reports the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listener address once the server is listening.
func (s *Server) Addr() net.Addr {
	<-s.listened
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens and serves until ctx is cancelled or the listener fails,
// then shuts down and runs the shutdown hooks. The hooks also run when the
// port cannot be bound. Run must only be called once.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		close(s.listened)
		s.log.Error("Failed to listen", zap.String("addr", s.httpServer.Addr), zap.Error(err))
		s.runHooks()
		s.state.Store(int32(Stopped))
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.addr = l.Addr()
	s.mu.Unlock()
	s.state.Store(int32(Listening))
	close(s.listened)

	s.log.Info("Server listening", zap.String("addr", l.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(l)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutdown signal received, stopping server...")
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
			s.log.Error("Server error", zap.Error(err))
		}
	}

	s.shutdown()
	return serveErr
}

func (s *Server) shutdown() {
	s.state.Store(int32(ShuttingDown))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	s.runHooks()
	s.state.Store(int32(Stopped))
	s.log.Info("Server stopped")
}

func (s *Server) runHooks() {
	s.mu.Lock()
	hooks := append([]hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		s.runHook(h)
	}
}

func (s *Server) runHook(h hook) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Shutdown hook panicked", zap.String("hook", h.name), zap.Any("panic", r))
		}
	}()

	s.log.Info("Starting cleanup", zap.String("hook", h.name))
	if err := h.fn(); err != nil {
		s.log.Error("Failed during cleanup", zap.String("hook", h.name), zap.Error(err))
		return
	}
	s.log.Info("Cleanup completed successfully", zap.String("hook", h.name))
}
