package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/event"
	"github.com/vastraline/fulfillment/internal/repository"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// flexString decodes a JSON value that the carrier sends sometimes as a
// string and sometimes as a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// WebhookPayload is the carrier's status callback body. Only the fields the
// reconciler uses are decoded; the raw body is stored alongside.
type WebhookPayload struct {
	SROrderID      flexString `json:"sr_order_id"`
	OrderID        flexString `json:"order_id"`
	AWB            flexString `json:"awb"`
	CurrentStatus  string     `json:"current_status"`
	ShipmentStatus string     `json:"shipment_status"`
	CourierName    string     `json:"courier_name"`
	ETD            string     `json:"etd"`
	Scans          []struct {
		Activity string `json:"activity"`
	} `json:"scans"`
}

// CarrierOrderID returns the identifier used to locate the shipment,
// preferring the carrier's own order ID over the echoed merchant order ID.
func (p *WebhookPayload) CarrierOrderID() string {
	if p.SROrderID != "" {
		return string(p.SROrderID)
	}
	return string(p.OrderID)
}

// RawStatus returns the status string the carrier reported.
func (p *WebhookPayload) RawStatus() string {
	if p.CurrentStatus != "" {
		return p.CurrentStatus
	}
	return p.ShipmentStatus
}

// activities returns the scan activity lines in payload order.
func (p *WebhookPayload) activities() []string {
	lines := make([]string, 0, len(p.Scans))
	for _, scan := range p.Scans {
		if scan.Activity != "" {
			lines = append(lines, scan.Activity)
		}
	}
	return lines
}

// WebhookService reconciles carrier status callbacks into stored shipment
// and order state.
type WebhookService struct {
	orders    repository.OrderRepository
	shipments repository.ShipmentRepository
	producer  *event.Producer
	logger    *slog.Logger
}

// NewWebhookService creates a new webhook reconciler.
func NewWebhookService(
	orders repository.OrderRepository,
	shipments repository.ShipmentRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		orders:    orders,
		shipments: shipments,
		producer:  producer,
		logger:    logger,
	}
}

// Apply processes one carrier callback: locate the shipment, record the raw
// event, derive the canonical status and push it onto the shipment and its
// order. Reapplying the same callback is harmless.
func (s *WebhookService) Apply(ctx context.Context, payload *WebhookPayload, rawBody []byte) (*domain.Shipment, error) {
	carrierOrderID := payload.CarrierOrderID()
	if carrierOrderID == "" {
		return nil, apperrors.InvalidInput("webhook payload has no order identifier")
	}

	// Some callback variants carry the carrier's shipment ID instead of its
	// order ID, so a miss on one falls through to the other.
	shipment, err := s.shipments.GetByCarrierOrderID(ctx, carrierOrderID)
	if err != nil && errors.Is(err, apperrors.ErrNotFound) {
		shipment, err = s.shipments.GetByCarrierShipmentID(ctx, carrierOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("locate shipment for webhook: %w", err)
	}

	derived := domain.DeriveCanonicalStatus(payload.RawStatus(), payload.activities())

	webhookEvent := &domain.WebhookEvent{
		ID:             uuid.New().String(),
		ShipmentID:     shipment.ID,
		CarrierOrderID: carrierOrderID,
		RawStatus:      payload.RawStatus(),
		DerivedStatus:  derived,
		Payload:        rawBody,
		ReceivedAt:     time.Now().UTC(),
	}
	if err := s.shipments.AppendWebhookEvent(ctx, webhookEvent); err != nil {
		s.logger.ErrorContext(ctx, "failed to record webhook event",
			slog.String("shipment_id", shipment.ID),
			slog.String("error", err.Error()),
		)
	}

	oldStatus := shipment.Status
	shipment.Status = derived
	if awb := string(payload.AWB); awb != "" {
		shipment.AWB = awb
	}
	if payload.CourierName != "" {
		shipment.CourierName = payload.CourierName
	}
	if payload.ETD != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", payload.ETD); err == nil {
			shipment.EstimatedDelivery = &t
		}
	}
	if derived == domain.StatusDelivered && shipment.DeliveredAt == nil {
		now := time.Now().UTC()
		shipment.DeliveredAt = &now
	}

	if err := s.shipments.Update(ctx, shipment); err != nil {
		return nil, fmt.Errorf("update shipment from webhook: %w", err)
	}

	if shipment.AWB != "" {
		if err := s.orders.SetTracking(ctx, shipment.OrderID, shipment.AWB, derived); err != nil {
			return nil, fmt.Errorf("set order tracking from webhook: %w", err)
		}
	} else {
		if err := s.orders.UpdateStatus(ctx, shipment.OrderID, derived); err != nil {
			return nil, fmt.Errorf("update order status from webhook: %w", err)
		}
	}

	if oldStatus != derived {
		if err := s.producer.PublishShipmentStatusChanged(ctx, shipment, oldStatus); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish shipment.status_changed event",
				slog.String("shipment_id", shipment.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "webhook applied",
		slog.String("shipment_id", shipment.ID),
		slog.String("carrier_order_id", carrierOrderID),
		slog.String("raw_status", payload.RawStatus()),
		slog.String("derived_status", derived),
	)

	return shipment, nil
}
