package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/api/docs"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
)

// Ensure docs are initialized
var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server represents the control-plane API HTTP server.
type Server struct {
	config  *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// Observer is the Observer surface the API needs: predicate
// registration/unregistration plus the two abstract ingestion endpoints.
// *internal/observer.Observer satisfies this directly.
type Observer interface {
	PredicateController
	BlockIngester
}

// NewServer creates a new API server wired to an Observer (for
// registration/unregistration and ingestion) and a Registry (for read-only
// inspection).
func NewServer(cfg *config.APIConfig, obs Observer, registry *predicate.Registry, log *logger.Logger) *Server {
	handler := NewHandler(obs, obs, registry, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)

	mux.HandleFunc("POST /predicates", handler.RegisterPredicate)
	mux.HandleFunc("GET /predicates", handler.ListPredicates)
	mux.HandleFunc("GET /predicates/{uuid}", handler.GetPredicate)
	mux.HandleFunc("DELETE /predicates/{uuid}", handler.UnregisterPredicate)
	mux.HandleFunc("GET /predicates/{uuid}/status", handler.GetPredicateStatus)

	mux.HandleFunc("POST /ingest/l1", handler.IngestL1Block)
	mux.HandleFunc("POST /ingest/l2", handler.IngestL2Block)

	// Swagger documentation endpoints
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	// Apply middleware
	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)

	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}

	// Use configured timeouts (defaults already applied in config.ApplyDefaults)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     log,
	}
}

// Start starts the API server.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	s.log.Infof("Starting API server on %s", s.config.ListenAddr)

	// Start server in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("API server error: %v", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
