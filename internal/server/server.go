package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"identity-reconciliation/internal/config"
	"identity-reconciliation/internal/handlers"
	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/middleware"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Identifier handlers.Identifier
	DB         handlers.Pinger
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics; nil skips the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the full handler: routes plus the middleware chain.
func NewRouter(cfg config.Config, deps Deps) http.Handler {
	identifyHandler := handlers.NewIdentifyHandler(deps.Identifier, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Logger)
	accessLog := middleware.AccessLog(deps.Logger, deps.Metrics)

	// Setup router
	router := mux.NewRouter()
	router.Use(accessLog)
	router.HandleFunc("/identify", identifyHandler.Handle).Methods(http.MethodPost)
	router.HandleFunc("/health", healthHandler.Handle).Methods(http.MethodGet)
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.NotFoundHandler = accessLog(http.HandlerFunc(handlers.NotFound))
	router.MethodNotAllowedHandler = accessLog(http.HandlerFunc(handlers.MethodNotAllowed))

	var h http.Handler = router
	h = middleware.BodyLimit(cfg.MaxBodyBytes)(h)
	h = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustProxyHeaders, deps.Logger, deps.Metrics)(h)
	h = middleware.CORS(cfg.AllowedOrigins)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RequestID(h)
	h = middleware.Recover(deps.Logger)(h)
	return h
}

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most shutdownTimeout.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
