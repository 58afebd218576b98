// Package httpapi exposes the workflow orchestrator over HTTP. Every response
// uses the uniform envelope from pkg/proto, and domain errors map to HTTP
// status codes through their error code.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"draftflow/pkg/agent"
	"draftflow/pkg/cache"
	"draftflow/pkg/events"
	"draftflow/pkg/logx"
	"draftflow/pkg/metrics"
	"draftflow/pkg/workflow"
)

// ownerHeader identifies the requesting owner. Requests without it are
// scoped to a shared local owner, which suits single-user deployments.
const ownerHeader = "X-Owner-ID"

const defaultOwner = "local"

// Deps carries everything the API serves. Cache, Bus, and Metrics are
// optional; the corresponding endpoints degrade gracefully when nil.
type Deps struct {
	Orchestrator *workflow.Orchestrator
	Registry     *agent.Registry
	Factory      *agent.ClientFactory
	Cache        *cache.ResponseCache
	Bus          *events.Bus
	Metrics      *metrics.QueryService
}

// Server is the HTTP front end for the orchestrator.
type Server struct {
	deps   Deps
	logger *logx.Logger
	http   *http.Server
}

// NewServer creates the API server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: logx.NewLogger("httpapi"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route tree. Exposed separately so tests can drive the
// API without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pipelines", s.handlePipelines())
		r.Get("/events", s.handleEvents())

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleCreateProject())
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", s.handleGetState())
				r.Post("/transition", s.handleTransition())
				r.Post("/next", s.handleNext())
				r.Post("/previous", s.handlePrevious())
				r.Post("/skip", s.handleSkip())
				r.Post("/complete", s.handleComplete())
				r.Post("/agent", s.handleInvokeAgent())
				r.Get("/usage", s.handleUsage())
			})
		})
	})

	return r
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("API server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx) //nolint:wrapcheck
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	host, port, err := net.SplitHostPort(s.http.Addr)
	if err != nil {
		return s.http.Addr
	}
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func ownerID(r *http.Request) string {
	if owner := r.Header.Get(ownerHeader); owner != "" {
		return owner
	}
	return defaultOwner
}
