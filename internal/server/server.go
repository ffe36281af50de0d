// Package server wires the HTTP API: market reads, lifecycle writes, the
// sweep trigger, and the WebSocket event feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/promptwars/warsd/internal/crypto"
	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/server/handler"
	"github.com/promptwars/warsd/internal/server/middleware"
	"github.com/promptwars/warsd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// Auth verifies signed operator and player requests on write routes.
	// Nil disables authentication.
	Auth *crypto.HMACAuth
	// Limiter throttles write routes per client IP. Nil disables limiting.
	Limiter   domain.RateLimiter
	RateLimit int
	RateWin   time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Lifecycle *handler.LifecycleHandler
	Sweep     *handler.SweepHandler
	Archives  *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux and builds the middleware
// chain. Reads are public; writes go through rate limiting and signature
// verification.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	writes := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		wrapped = middleware.HMACAuth(cfg.Auth)(wrapped)
		if cfg.Limiter != nil {
			wrapped = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWin)(wrapped)
		}
		return wrapped
	}

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market reads.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/snapshot", handlers.Markets.GetSnapshot)
	mux.HandleFunc("GET /api/markets/{id}/status", handlers.Markets.GetStatus)
	mux.HandleFunc("GET /api/markets/{id}/resolution", handlers.Markets.GetResolution)
	mux.HandleFunc("GET /api/markets/{id}/fees", handlers.Markets.GetFees)
	mux.HandleFunc("GET /api/markets/{id}/management", handlers.Markets.GetManagement)
	mux.HandleFunc("GET /api/markets/{id}/collateral", handlers.Markets.GetCollateral)
	mux.HandleFunc("GET /api/markets/{id}/players", handlers.Markets.ListPlayers)
	mux.HandleFunc("GET /api/markets/{id}/players/{player}", handlers.Markets.GetPlayer)
	mux.HandleFunc("GET /api/markets/{id}/events", handlers.Markets.ListEvents)

	// Market creation and lifecycle writes.
	mux.Handle("POST /api/markets", writes(handlers.Markets.CreateMarket))
	mux.Handle("POST /api/markets/{id}/register", writes(handlers.Lifecycle.Register))
	mux.Handle("POST /api/markets/{id}/reveal", writes(handlers.Lifecycle.Reveal))
	mux.Handle("POST /api/markets/{id}/resolve", writes(handlers.Lifecycle.Resolve))
	mux.Handle("POST /api/markets/{id}/sell", writes(handlers.Lifecycle.Sell))
	mux.Handle("POST /api/markets/{id}/claim-fees", writes(handlers.Lifecycle.ClaimFees))

	// Manual sweep trigger.
	if handlers.Sweep != nil {
		mux.Handle("POST /api/sweep", writes(handlers.Sweep.Trigger))
	}

	// Cold-storage archives of swept markets.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.List)
		mux.HandleFunc("GET /api/archives/{id}", handlers.Archives.Get)
		mux.Handle("DELETE /api/archives/{id}", writes(handlers.Archives.Delete))
	}

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the outer middleware chain.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
