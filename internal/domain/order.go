package domain

import "time"

// Payment status constants.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Order represents a customer order moving through fulfillment.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Status          string      `json:"status"`
	Items           []OrderItem `json:"items"`
	SubtotalAmount  int64       `json:"subtotal_amount"`
	DiscountAmount  int64       `json:"discount_amount"`
	ShippingAmount  int64       `json:"shipping_amount"`
	TotalAmount     int64       `json:"total_amount"`
	Currency        string      `json:"currency"`
	ShippingAddress *Address    `json:"shipping_address,omitempty"`

	// Payment provider state.
	PaymentStatus    string `json:"payment_status"`
	ProviderOrderID  string `json:"provider_order_id,omitempty"`
	ProviderPayment  string `json:"provider_payment_id,omitempty"`
	PaymentSignature string `json:"-"`

	// Carrier state pushed back by fulfillment and webhooks.
	TrackingID string `json:"tracking_id,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPaid reports whether payment for the order has been confirmed.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// Shippable reports whether the order is in a state where a shipment may be
// created for it. Terminal orders and orders already handed to the carrier
// are excluded.
func (o *Order) Shippable() bool {
	switch o.Status {
	case StatusPending, StatusProcessing, StatusConfirmed:
		return true
	default:
		return false
	}
}
