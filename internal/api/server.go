package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fusion"
	"github.com/opensource-finance/harrier/internal/sar"
)

const (
	// graphTimeout bounds the endpoints that build a full graph snapshot.
	graphTimeout = 2 * time.Minute

	// maxConcurrentRescores caps whole-store rescoring requests in flight.
	maxConcurrentRescores = 2
)

// Server is the HTTP surface of the scoring service.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the handlers onto a chi router.
func NewServer(cfg domain.ServerConfig, store domain.Store, cache domain.Cache, bus domain.EventBus, engine *fusion.Engine, reports *sar.Builder, version string) *Server {
	handler := NewHandler(store, cache, bus, engine, reports, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Post("/transactions", handler.IngestTransactions)
	router.Get("/transactions", handler.ListTransactions)

	// Everything below reads a graph snapshot of the whole store.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(graphTimeout))

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/risk", handler.GetRisk)
			r.Get("/explain", handler.Explain)
			r.Get("/network", handler.GetNetwork)
			r.Get("/layering", handler.GetLayering)
			r.Get("/behavior", handler.GetBehavior)
			r.Get("/ego", handler.GetEgo)
			r.Get("/sar", handler.GetSAR)
		})

		r.Get("/network/visualization", handler.NetworkVisualization)
		r.Get("/patterns", handler.Patterns)
		r.Get("/statistics", handler.Statistics)

		r.Get("/risk/high", handler.HighRisk)
		r.With(middleware.Throttle(maxConcurrentRescores)).Post("/risk/batch", handler.BatchRescore)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
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
