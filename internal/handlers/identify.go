package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"identity-reconciliation/internal/httputil"
	"identity-reconciliation/internal/middleware"
	"identity-reconciliation/internal/models"
	"identity-reconciliation/internal/service"
)

// Identifier resolves a contact submission to a consolidated identity.
type Identifier interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error)
}

// IdentifyHandler handles the /identify endpoint
type IdentifyHandler struct {
	service Identifier
	logger  *slog.Logger
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(svc Identifier, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{
		service: svc,
		logger:  logger,
	}
}

// Handle processes the identify request
func (h *IdentifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.IdentifyRequest
	if err := decodeBody(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, httputil.CodeBadRequest, "request body too large")
			return
		}
		h.logger.DebugContext(ctx, "error decoding request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid JSON")
		return
	}

	// Validate request - at least one of email or phoneNumber must be provided
	if err := service.ValidateRequest(req.Email, req.PhoneNumber); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
		return
	}

	response, err := h.service.Identify(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(ctx, "error processing identify request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, response)
}

// decodeBody decodes exactly one JSON value from body. Anything after it
// other than whitespace is an error.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errors.New("unexpected data after JSON body")
	}
}
