package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"identity-reconciliation/internal/models"
)

// Error codes written in the "error" field of error bodies.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeTooManyRequests  = "too_many_requests"
	CodeInternal         = "internal_error"
	CodeUnavailable      = "service_unavailable"
)

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// WriteError writes an error body. Internal errors never carry a message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		message = ""
	}
	WriteJSON(w, status, models.ErrorResponse{Error: code, Message: message})
}
