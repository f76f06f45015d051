package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vastraline/fulfillment/internal/carrier"
	"github.com/vastraline/fulfillment/internal/repository"
	"github.com/vastraline/fulfillment/internal/service"
	"github.com/vastraline/fulfillment/pkg/httputil"
	"github.com/vastraline/fulfillment/pkg/validator"
)

// ShipmentHandler handles HTTP requests for shipment endpoints.
type ShipmentHandler struct {
	service *service.FulfillmentService
	logger  *slog.Logger
}

// NewShipmentHandler creates a new shipment HTTP handler.
func NewShipmentHandler(svc *service.FulfillmentService, logger *slog.Logger) *ShipmentHandler {
	return &ShipmentHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateShipmentRequest is the JSON request body for creating a shipment.
type CreateShipmentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// AssignAWBRequest is the JSON request body for assigning a waybill.
type AssignAWBRequest struct {
	CourierID string `json:"courier_id"`
}

// --- Handlers ---

// CreateShipment handles POST /api/v1/shipments
func (h *ShipmentHandler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	shipment, err := h.service.CreateShipment(r.Context(), req.OrderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: shipment})
}

// ListShipments handles GET /api/v1/shipments
func (h *ShipmentHandler) ListShipments(w http.ResponseWriter, r *http.Request) {
	filter := repository.ShipmentFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return
		}
		filter.Page = page
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return
		}
		filter.PerPage = perPage
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	shipments, total, err := h.service.ListShipments(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(shipments, total, filter.Page, filter.PerPage))
}

// GetShipment handles GET /api/v1/shipments/{id}
func (h *ShipmentHandler) GetShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	shipment, err := h.service.GetShipment(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: shipment})
}

// AssignAWB handles POST /api/v1/shipments/{id}/awb
func (h *ShipmentHandler) AssignAWB(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req AssignAWBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	shipment, err := h.service.AssignAWB(r.Context(), id.String(), req.CourierID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: shipment})
}

// RequestPickup handles POST /api/v1/shipments/{id}/pickup
func (h *ShipmentHandler) RequestPickup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	shipment, err := h.service.RequestPickup(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: shipment})
}

// CancelShipment handles POST /api/v1/shipments/{id}/cancel
func (h *ShipmentHandler) CancelShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	shipment, err := h.service.CancelShipment(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: shipment})
}

// RefreshTracking handles POST /api/v1/orders/{id}/refresh-tracking
func (h *ShipmentHandler) RefreshTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	shipment, err := h.service.RefreshTracking(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: shipment})
}

// ListCouriers handles GET /api/v1/shipments/couriers
func (h *ShipmentHandler) ListCouriers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := &carrier.ServiceabilityRequest{
		PickupPostcode:   q.Get("pickup_postcode"),
		DeliveryPostcode: q.Get("delivery_postcode"),
	}
	if v := q.Get("weight"); v != "" {
		weight, err := strconv.ParseFloat(v, 64)
		if err != nil || weight <= 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "weight must be a positive number of kilograms"},
			})
			return
		}
		req.WeightKg = weight
	}
	if v := q.Get("cod"); v != "" {
		cod, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "cod must be a boolean"},
			})
			return
		}
		req.COD = cod
	}

	couriers, err := h.service.ListCouriers(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: couriers})
}
