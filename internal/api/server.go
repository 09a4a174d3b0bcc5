// Package api exposes the fraud engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/pipeline"
	"go.opentelemetry.io/otel/trace"
)

// Pinger is a dependency whose health the readiness probe reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to the rest of the service.
// Everything except Processor is optional.
type Options struct {
	Processor *pipeline.Processor
	Bus       domain.EventBus
	State     Pinger

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	// Tracer records a span per request. Nil disables tracing.
	Tracer trace.Tracer

	Version string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	stream  *StreamHandler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server and registers its live feed as a
// listener on the processor.
func NewServer(cfg domain.ServerConfig, opts Options) *Server {
	stream := NewStreamHandler(cfg.AllowedOrigins)
	opts.Processor.AddListener(stream)

	handler := NewHandler(opts, cfg.MaxBatchSize)
	router := chi.NewRouter()

	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware(opts.Tracer))
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	// The websocket route stays outside compression, which cannot wrap a
	// hijacked connection.
	router.Get("/ws/evaluations", stream.ServeHTTP)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/", handler.Root)
		r.Get("/health", handler.Health)
		r.Get("/ready", handler.Ready)

		r.Post("/evaluate", handler.Evaluate)
		r.Post("/batch-evaluate", handler.BatchEvaluate)

		r.Get("/rules", handler.ListRules)

		r.Get("/evaluations", handler.ListEvaluations)
		r.Get("/evaluations/{id}", handler.GetEvaluation)

		if opts.MetricsHandler != nil {
			path := opts.MetricsPath
			if path == "" {
				path = "/metrics"
			}
			r.Handle(path, opts.MetricsHandler)
		}
	})

	return &Server{
		router:  router,
		handler: handler,
		stream:  stream,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown closes live feed clients and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stream.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Stream returns the live feed handler.
func (s *Server) Stream() *StreamHandler {
	return s.stream
}
