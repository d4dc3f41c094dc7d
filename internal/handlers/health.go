package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"identity-reconciliation/internal/httputil"
	"identity-reconciliation/internal/models"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
	now    func() time.Time
}

// NewHealthHandler creates a health handler that checks db.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger, now: time.Now}
}

// Handle answers 200 while the database answers pings, 503 otherwise.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, httputil.CodeUnavailable, "")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Message:   "identity reconciliation service is running",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "the requested endpoint does not exist")
}

// MethodNotAllowed answers known routes hit with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, httputil.CodeMethodNotAllowed, "method not allowed")
}
