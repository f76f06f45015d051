package domain

import "time"

// Shipment is the persisted record of a carrier shipment for one order.
// A single live shipment exists per order; cancelled shipments are
// soft-deleted so a replacement can be created.
type Shipment struct {
	ID                string     `json:"id"`
	OrderID           string     `json:"order_id"`
	CarrierOrderID    string     `json:"carrier_order_id"`
	CarrierShipmentID string     `json:"carrier_shipment_id,omitempty"`
	AWB               string     `json:"awb,omitempty"`
	CourierID         string     `json:"courier_id,omitempty"`
	CourierName       string     `json:"courier_name,omitempty"`
	Status            string     `json:"status"`
	LabelURL          string     `json:"label_url,omitempty"`
	ManifestURL       string     `json:"manifest_url,omitempty"`
	PickupScheduledAt *time.Time `json:"pickup_scheduled_at,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	WeightKg          float64    `json:"weight_kg"`
	IsDeleted         bool       `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasAWB reports whether a waybill has been assigned. Pickup scheduling is
// refused until one exists.
func (s *Shipment) HasAWB() bool {
	return s.AWB != ""
}

// WebhookEvent is one raw carrier callback recorded against a shipment.
// Rows are append-only and kept for reconciliation audits.
type WebhookEvent struct {
	ID             string    `json:"id"`
	ShipmentID     string    `json:"shipment_id"`
	CarrierOrderID string    `json:"carrier_order_id,omitempty"`
	RawStatus      string    `json:"raw_status"`
	DerivedStatus  string    `json:"derived_status"`
	Payload        []byte    `json:"-"`
	ReceivedAt     time.Time `json:"received_at"`
}
