package payment

import (
	"context"
)

// CreateOrderInput holds the parameters for creating a provider order.
type CreateOrderInput struct {
	// Amount is in the smallest currency unit (paise for INR).
	Amount   int64
	Currency string
	Receipt  string
}

// ProviderOrder is the provider's record of an order awaiting payment.
type ProviderOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway defines the interface for payment provider integrations.
type Gateway interface {
	// Name returns the provider name (e.g., "razorpay").
	Name() string

	// CreateOrder registers an order with the provider so the client can
	// collect payment against it.
	CreateOrder(ctx context.Context, input *CreateOrderInput) (*ProviderOrder, error)

	// VerifySignature checks the provider's payment signature for the given
	// provider order and payment IDs.
	VerifySignature(orderID, paymentID, signature string) bool
}
