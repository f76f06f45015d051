package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/vastraline/fulfillment/internal/service"
	"github.com/vastraline/fulfillment/pkg/httputil"
)

// WebhookHandler receives carrier status callbacks.
type WebhookHandler struct {
	service *service.WebhookService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook HTTP handler.
func NewWebhookHandler(svc *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: svc,
		logger:  logger,
	}
}

// HandleCarrierWebhook handles POST /api/v1/webhooks/carrier
//
// The raw body is retained alongside the parsed payload so the full
// callback can be stored for audit.
func (h *WebhookHandler) HandleCarrierWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "unable to read request body"},
		})
		return
	}

	var payload service.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid webhook payload: " + err.Error()},
		})
		return
	}

	shipment, err := h.service.Apply(r.Context(), &payload, body)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"shipment_id": shipment.ID,
		"status":      shipment.Status,
	}})
}
