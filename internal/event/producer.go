package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vastraline/fulfillment/internal/domain"
	pkgkafka "github.com/vastraline/fulfillment/pkg/kafka"
)

// Kafka topics for fulfillment domain events.
var (
	TopicOrderPlaced           = pkgkafka.Topic("order", "placed")
	TopicOrderStatusChanged    = pkgkafka.Topic("order", "status_changed")
	TopicShipmentCreated       = pkgkafka.Topic("shipment", "created")
	TopicShipmentStatusChanged = pkgkafka.Topic("shipment", "status_changed")
)

// Aggregate type constants.
const (
	AggregateTypeOrder    = "order"
	AggregateTypeShipment = "shipment"
)

// Source identifier for events originating from this service.
const SourceFulfillment = "fulfillment-service"

// OrderPlacedData is the payload for an order.placed event.
type OrderPlacedData struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	TotalAmount     int64           `json:"total_amount"`
	Currency        string          `json:"currency"`
	ProviderOrderID string          `json:"provider_order_id,omitempty"`
	ShippingAddress *domain.Address `json:"shipping_address,omitempty"`
	ItemCount       int             `json:"item_count"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID    string `json:"order_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	TrackingID string `json:"tracking_id,omitempty"`
}

// ShipmentCreatedData is the payload for a shipment.created event.
type ShipmentCreatedData struct {
	ShipmentID     string  `json:"shipment_id"`
	OrderID        string  `json:"order_id"`
	CarrierOrderID string  `json:"carrier_order_id"`
	WeightKg       float64 `json:"weight_kg"`
}

// ShipmentStatusChangedData is the payload for a shipment.status_changed event.
type ShipmentStatusChangedData struct {
	ShipmentID string `json:"shipment_id"`
	OrderID    string `json:"order_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	AWB        string `json:"awb,omitempty"`
}

// Producer publishes fulfillment domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the fulfillment service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOrderPlaced publishes an order.placed event.
func (p *Producer) PublishOrderPlaced(ctx context.Context, order *domain.Order) error {
	data := OrderPlacedData{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		ProviderOrderID: order.ProviderOrderID,
		ShippingAddress: order.ShippingAddress,
		ItemCount:       len(order.Items),
	}

	return p.publish(ctx, TopicOrderPlaced, order.ID, AggregateTypeOrder, data)
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus, trackingID string) error {
	data := OrderStatusChangedData{
		OrderID:    orderID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		TrackingID: trackingID,
	}

	return p.publish(ctx, TopicOrderStatusChanged, orderID, AggregateTypeOrder, data)
}

// PublishShipmentCreated publishes a shipment.created event.
func (p *Producer) PublishShipmentCreated(ctx context.Context, shipment *domain.Shipment) error {
	data := ShipmentCreatedData{
		ShipmentID:     shipment.ID,
		OrderID:        shipment.OrderID,
		CarrierOrderID: shipment.CarrierOrderID,
		WeightKg:       shipment.WeightKg,
	}

	return p.publish(ctx, TopicShipmentCreated, shipment.ID, AggregateTypeShipment, data)
}

// PublishShipmentStatusChanged publishes a shipment.status_changed event.
func (p *Producer) PublishShipmentStatusChanged(ctx context.Context, shipment *domain.Shipment, oldStatus string) error {
	data := ShipmentStatusChangedData{
		ShipmentID: shipment.ID,
		OrderID:    shipment.OrderID,
		OldStatus:  oldStatus,
		NewStatus:  shipment.Status,
		AWB:        shipment.AWB,
	}

	return p.publish(ctx, TopicShipmentStatusChanged, shipment.ID, AggregateTypeShipment, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceFulfillment, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
