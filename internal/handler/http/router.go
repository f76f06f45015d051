package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vastraline/fulfillment/internal/service"
	"github.com/vastraline/fulfillment/pkg/health"
	"github.com/vastraline/fulfillment/pkg/middleware"
)

// NewRouter creates a chi router with all fulfillment service routes registered.
func NewRouter(
	orderService *service.OrderService,
	fulfillmentService *service.FulfillmentService,
	webhookService *service.WebhookService,
	healthHandler *health.Handler,
	tokenValidator middleware.TokenValidator,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("fulfillment"))
	r.Use(middleware.Tracing("fulfillment"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	orderHandler := NewOrderHandler(orderService, logger)
	shipmentHandler := NewShipmentHandler(fulfillmentService, logger)
	webhookHandler := NewWebhookHandler(webhookService, logger)

	// Public endpoints. The carrier posts status callbacks here and tracking
	// lookup is keyed by the waybill number itself.
	r.Post("/api/v1/webhooks/carrier", webhookHandler.HandleCarrierWebhook)
	r.Get("/api/v1/track/{trackingId}", orderHandler.TrackOrder)

	// Order endpoints require an authenticated user.
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Post("/", orderHandler.PlaceOrder)
		r.Get("/", orderHandler.ListOrders)
		r.Get("/{id}", orderHandler.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))

			r.Patch("/{id}/status", orderHandler.UpdateOrderStatus)
			r.Post("/{id}/refresh-tracking", shipmentHandler.RefreshTracking)
		})
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Post("/verify", orderHandler.VerifyPayment)
	})

	// Shipment management is operator-only.
	r.Route("/api/v1/shipments", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole("admin"))

		r.Post("/", shipmentHandler.CreateShipment)
		r.Get("/", shipmentHandler.ListShipments)
		r.Get("/couriers", shipmentHandler.ListCouriers)
		r.Get("/{id}", shipmentHandler.GetShipment)
		r.Post("/{id}/awb", shipmentHandler.AssignAWB)
		r.Post("/{id}/pickup", shipmentHandler.RequestPickup)
		r.Post("/{id}/cancel", shipmentHandler.CancelShipment)
	})

	return r
}
