package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vastraline/fulfillment/internal/carrier"
	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/event"
	"github.com/vastraline/fulfillment/internal/repository"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// CarrierAPI is the carrier operations the fulfillment service depends on.
// Satisfied by *carrier.Client.
type CarrierAPI interface {
	CreateOrder(ctx context.Context, payload *carrier.OrderPayload) (*carrier.CreateOrderResponse, error)
	AssignAWB(ctx context.Context, req *carrier.AssignAWBRequest) (*carrier.AssignAWBResponse, error)
	RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.PickupResponse, error)
	TrackByAWB(ctx context.Context, awb string) (*carrier.TrackingResponse, error)
	TrackByOrderID(ctx context.Context, carrierOrderID string) (*carrier.TrackingResponse, error)
	Serviceability(ctx context.Context, req *carrier.ServiceabilityRequest) (*carrier.ServiceabilityResponse, error)
	Cancel(ctx context.Context, carrierOrderIDs []string) error
}

// FulfillmentService orchestrates shipment creation and lifecycle against
// the carrier: one live shipment per order, waybill before pickup, and
// carrier state pushed back onto the order.
type FulfillmentService struct {
	orders    repository.OrderRepository
	shipments repository.ShipmentRepository
	converter *Converter
	carrier   CarrierAPI
	producer  *event.Producer
	logger    *slog.Logger
}

// NewFulfillmentService creates a new fulfillment orchestrator.
func NewFulfillmentService(
	orders repository.OrderRepository,
	shipments repository.ShipmentRepository,
	converter *Converter,
	carrierAPI CarrierAPI,
	producer *event.Producer,
	logger *slog.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		orders:    orders,
		shipments: shipments,
		converter: converter,
		carrier:   carrierAPI,
		producer:  producer,
		logger:    logger,
	}
}

// CreateShipment creates a shipment for an order via an explicit request,
// conflicting when a live shipment already exists.
func (s *FulfillmentService) CreateShipment(ctx context.Context, orderID string) (*domain.Shipment, error) {
	if _, err := s.shipments.GetByOrderID(ctx, orderID); err == nil {
		return nil, apperrors.AlreadyExists("shipment", "order_id", orderID)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing shipment: %w", err)
	}

	return s.createShipment(ctx, orderID)
}

// EnsureShipment creates a shipment for an order if none exists yet. Safe to
// call repeatedly: an existing shipment is returned as-is, and a concurrent
// insert losing the unique-index race resolves to the winner's record.
func (s *FulfillmentService) EnsureShipment(ctx context.Context, orderID string) (*domain.Shipment, error) {
	existing, err := s.shipments.GetByOrderID(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing shipment: %w", err)
	}

	shipment, err := s.createShipment(ctx, orderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return s.shipments.GetByOrderID(ctx, orderID)
		}
		return nil, err
	}
	return shipment, nil
}

func (s *FulfillmentService) createShipment(ctx context.Context, orderID string) (*domain.Shipment, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for shipment: %w", err)
	}

	if !order.Shippable() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("order in %q status cannot be shipped", order.Status))
	}

	payload, err := s.converter.ToCarrierPayload(ctx, order)
	if err != nil {
		return nil, err
	}

	created, err := s.carrier.CreateOrder(ctx, payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	shipment := &domain.Shipment{
		ID:                uuid.New().String(),
		OrderID:           order.ID,
		CarrierOrderID:    strconv.FormatInt(created.OrderID, 10),
		CarrierShipmentID: strconv.FormatInt(created.ShipmentID, 10),
		Status:            domain.StatusPending,
		WeightKg:          payload.Weight,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.shipments.Create(ctx, shipment); err != nil {
		return nil, err
	}

	if order.Status == domain.StatusPending {
		if err := s.orders.UpdateStatus(ctx, order.ID, domain.StatusProcessing); err != nil {
			s.logger.ErrorContext(ctx, "failed to move order to processing",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishShipmentCreated(ctx, shipment); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish shipment.created event",
			slog.String("shipment_id", shipment.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "shipment created",
		slog.String("shipment_id", shipment.ID),
		slog.String("order_id", order.ID),
		slog.String("carrier_order_id", shipment.CarrierOrderID),
	)

	return shipment, nil
}

// AssignAWB assigns a waybill from the chosen courier to a shipment. On
// success the shipment is confirmed and the order gains its tracking ID.
func (s *FulfillmentService) AssignAWB(ctx context.Context, shipmentID, courierID string) (*domain.Shipment, error) {
	if courierID == "" {
		return nil, apperrors.InvalidInput("courier_id is required")
	}

	shipment, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment for awb: %w", err)
	}

	resp, err := s.carrier.AssignAWB(ctx, &carrier.AssignAWBRequest{
		ShipmentID: shipment.CarrierShipmentID,
		CourierID:  courierID,
	})
	if err != nil {
		return nil, err
	}

	data := resp.Response.Data
	if data.AWBCode == "" {
		return nil, apperrors.Upstream("carrier", fmt.Errorf("awb assignment returned no waybill (status %d)", resp.AWBAssignStatus))
	}

	oldStatus := shipment.Status
	shipment.AWB = data.AWBCode
	shipment.CourierID = strconv.FormatInt(data.CourierID, 10)
	shipment.CourierName = data.CourierName
	shipment.LabelURL = data.LabelURL
	shipment.ManifestURL = data.ManifestURL
	shipment.Status = domain.StatusConfirmed

	if err := s.shipments.Update(ctx, shipment); err != nil {
		return nil, fmt.Errorf("update shipment after awb: %w", err)
	}

	if err := s.orders.SetTracking(ctx, shipment.OrderID, shipment.AWB, domain.StatusShipped); err != nil {
		return nil, fmt.Errorf("set order tracking: %w", err)
	}

	if err := s.producer.PublishShipmentStatusChanged(ctx, shipment, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish shipment.status_changed event",
			slog.String("shipment_id", shipment.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "awb assigned",
		slog.String("shipment_id", shipment.ID),
		slog.String("awb", shipment.AWB),
		slog.String("courier", shipment.CourierName),
	)

	return shipment, nil
}

// RequestPickup schedules courier pickup for a shipment. Refused until a
// waybill has been assigned.
func (s *FulfillmentService) RequestPickup(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	shipment, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment for pickup: %w", err)
	}

	if !shipment.HasAWB() {
		return nil, apperrors.InvalidInput("waybill must be assigned before requesting pickup")
	}

	resp, err := s.carrier.RequestPickup(ctx, &carrier.PickupRequest{
		ShipmentIDs: []string{shipment.CarrierShipmentID},
	})
	if err != nil {
		return nil, err
	}

	oldStatus := shipment.Status
	shipment.Status = domain.StatusOutForPickup
	if scheduled := resp.Response.PickupScheduledDate; scheduled != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", scheduled); err == nil {
			shipment.PickupScheduledAt = &t
		}
	}

	if err := s.shipments.Update(ctx, shipment); err != nil {
		return nil, fmt.Errorf("update shipment after pickup: %w", err)
	}

	if err := s.producer.PublishShipmentStatusChanged(ctx, shipment, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish shipment.status_changed event",
			slog.String("shipment_id", shipment.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "pickup requested",
		slog.String("shipment_id", shipment.ID),
		slog.String("awb", shipment.AWB),
	)

	return shipment, nil
}

// CancelShipment cancels the carrier order and soft-deletes the shipment so
// a replacement can be created for the order later.
func (s *FulfillmentService) CancelShipment(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	shipment, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment for cancel: %w", err)
	}

	if err := s.carrier.Cancel(ctx, []string{shipment.CarrierOrderID}); err != nil {
		return nil, err
	}

	oldStatus := shipment.Status
	shipment.Status = domain.StatusCancelled
	shipment.IsDeleted = true

	if err := s.shipments.Update(ctx, shipment); err != nil {
		return nil, fmt.Errorf("update shipment after cancel: %w", err)
	}

	if err := s.orders.UpdateStatus(ctx, shipment.OrderID, domain.StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	if err := s.producer.PublishShipmentStatusChanged(ctx, shipment, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish shipment.status_changed event",
			slog.String("shipment_id", shipment.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "shipment cancelled",
		slog.String("shipment_id", shipment.ID),
		slog.String("order_id", shipment.OrderID),
	)

	return shipment, nil
}

// RefreshTracking polls the carrier for an order's shipment and reconciles
// the stored status with what the carrier reports, exactly as a webhook
// delivery would.
func (s *FulfillmentService) RefreshTracking(ctx context.Context, orderID string) (*domain.Shipment, error) {
	shipment, err := s.shipments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get shipment for tracking: %w", err)
	}

	var tracking *carrier.TrackingResponse
	if shipment.HasAWB() {
		tracking, err = s.carrier.TrackByAWB(ctx, shipment.AWB)
	} else {
		tracking, err = s.carrier.TrackByOrderID(ctx, shipment.CarrierOrderID)
	}
	if err != nil {
		return nil, err
	}

	derived := domain.DeriveCanonicalStatus(tracking.TrackingData.ShipmentStatus, tracking.ActivityLines())

	oldStatus := shipment.Status
	shipment.Status = derived
	if awb := tracking.TrackingData.AWB; awb != "" {
		shipment.AWB = awb
	}
	if name := tracking.TrackingData.CourierName; name != "" {
		shipment.CourierName = name
	}
	if etd := tracking.TrackingData.ETD; etd != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", etd); err == nil {
			shipment.EstimatedDelivery = &t
		}
	}
	if derived == domain.StatusDelivered && shipment.DeliveredAt == nil {
		now := time.Now().UTC()
		shipment.DeliveredAt = &now
	}

	if err := s.shipments.Update(ctx, shipment); err != nil {
		return nil, fmt.Errorf("update shipment after tracking: %w", err)
	}

	if err := s.pushToOrder(ctx, shipment); err != nil {
		return nil, err
	}

	if oldStatus != shipment.Status {
		if err := s.producer.PublishShipmentStatusChanged(ctx, shipment, oldStatus); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish shipment.status_changed event",
				slog.String("shipment_id", shipment.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return shipment, nil
}

// pushToOrder mirrors the shipment's carrier state onto its order.
func (s *FulfillmentService) pushToOrder(ctx context.Context, shipment *domain.Shipment) error {
	if shipment.AWB != "" {
		if err := s.orders.SetTracking(ctx, shipment.OrderID, shipment.AWB, shipment.Status); err != nil {
			return fmt.Errorf("set order tracking: %w", err)
		}
		return nil
	}
	if err := s.orders.UpdateStatus(ctx, shipment.OrderID, shipment.Status); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// GetShipment retrieves a shipment by ID.
func (s *FulfillmentService) GetShipment(ctx context.Context, id string) (*domain.Shipment, error) {
	shipment, err := s.shipments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get shipment by id: %w", err)
	}
	return shipment, nil
}

// ListShipments returns a filtered, paginated list of shipments.
func (s *FulfillmentService) ListShipments(ctx context.Context, filter repository.ShipmentFilter) ([]domain.Shipment, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	shipments, total, err := s.shipments.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list shipments: %w", err)
	}

	return shipments, total, nil
}

// ListCouriers returns the couriers able to serve a pickup/delivery lane.
func (s *FulfillmentService) ListCouriers(ctx context.Context, req *carrier.ServiceabilityRequest) ([]carrier.Courier, error) {
	if req.PickupPostcode == "" || req.DeliveryPostcode == "" {
		return nil, apperrors.InvalidInput("pickup_postcode and delivery_postcode are required")
	}

	resp, err := s.carrier.Serviceability(ctx, req)
	if err != nil {
		return nil, err
	}

	return resp.Data.AvailableCouriers, nil
}
