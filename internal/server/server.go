// Package server implements the HTTP server that routes inbound requests to
// registered agent handlers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/enso/agent"
)

// Server is the agent-hosting HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Context service handles and Tracer come in
// through the agent Context factory.
type ServerConfig struct {
	// Required dependencies.
	Registry   *agent.Registry
	NewContext ContextFactory
	Logger     *slog.Logger

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// AgentTimeout bounds handoffs to other agents in this process.
	AgentTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Registry:            cfg.Registry,
		NewContext:          cfg.NewContext,
		Logger:              cfg.Logger,
		Port:                cfg.Port,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AgentTimeout:        cfg.AgentTimeout,
	})

	mux := http.NewServeMux()

	// Agent invocation. Every registered agent answers on its id.
	mux.HandleFunc("POST /{agent_id}", h.HandleInvoke)

	// Discovery and diagnostics.
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /_health", h.HandleHealth)
	mux.HandleFunc("GET /welcome", h.HandleWelcome)
	mux.HandleFunc("GET /welcome/{agent_id}", h.HandleWelcome)

	// CORS preflight for any path.
	mux.HandleFunc("OPTIONS /", h.HandlePreflight)

	// Middleware chain (outermost executes first):
	// request ID → CORS/server headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.Version, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers for access in tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
