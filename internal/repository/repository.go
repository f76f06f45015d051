package repository

import (
	"context"

	"github.com/vastraline/fulfillment/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// ShipmentFilter defines filter criteria for listing shipments.
type ShipmentFilter struct {
	Status  *string
	Page    int
	PerPage int
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts a new order and its items into the store atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier, including items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByTrackingID retrieves an order by its carrier waybill number.
	GetByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus changes the status of an order.
	UpdateStatus(ctx context.Context, id string, status string) error

	// SetProviderOrder records the payment provider's order identifier.
	SetProviderOrder(ctx context.Context, id string, providerOrderID string) error

	// MarkPaid records a verified payment against the order.
	MarkPaid(ctx context.Context, id string, providerPaymentID, signature string) error

	// SetTracking records the carrier waybill number and new status on the order.
	SetTracking(ctx context.Context, id string, trackingID string, status string) error
}

// AddressRepository defines the interface for address book persistence.
type AddressRepository interface {
	// Create inserts a new address. When the address is marked default, any
	// existing default for the user is cleared in the same transaction.
	Create(ctx context.Context, addr *domain.Address) error

	// GetByID retrieves an address owned by the given user.
	GetByID(ctx context.Context, id, userID string) (*domain.Address, error)

	// GetDefault retrieves the user's default address.
	GetDefault(ctx context.Context, userID string) (*domain.Address, error)
}

// ShipmentRepository defines the interface for shipment persistence.
type ShipmentRepository interface {
	// Create inserts a new shipment. Returns apperrors.ErrAlreadyExists when
	// a live shipment already exists for the order.
	Create(ctx context.Context, shipment *domain.Shipment) error

	// GetByID retrieves a shipment by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)

	// GetByOrderID retrieves the live shipment for an order.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Shipment, error)

	// GetByCarrierOrderID retrieves a shipment by the carrier's order identifier.
	GetByCarrierOrderID(ctx context.Context, carrierOrderID string) (*domain.Shipment, error)

	// GetByCarrierShipmentID retrieves a shipment by the carrier's shipment identifier.
	GetByCarrierShipmentID(ctx context.Context, carrierShipmentID string) (*domain.Shipment, error)

	// List returns shipments matching the given filter with the total count.
	List(ctx context.Context, filter ShipmentFilter) ([]domain.Shipment, int, error)

	// Update persists mutable shipment fields (status, AWB, courier, URLs, dates).
	Update(ctx context.Context, shipment *domain.Shipment) error

	// AppendWebhookEvent records one raw carrier callback against a shipment.
	AppendWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error
}

// TokenRepository defines the interface for carrier token persistence.
type TokenRepository interface {
	// GetActive returns the newest active token, or apperrors.ErrNotFound
	// when none exists.
	GetActive(ctx context.Context) (*domain.CarrierToken, error)

	// Create inserts a new active token, deactivating all prior rows in the
	// same transaction.
	Create(ctx context.Context, token *domain.CarrierToken) error

	// DeactivateAll marks every stored token inactive.
	DeactivateAll(ctx context.Context) error
}

// ProductRepository defines read access to the product catalog.
type ProductRepository interface {
	// GetByIDs returns the products for the given IDs, keyed by ID. Missing
	// IDs are simply absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// CartRepository defines the interface for the Redis-backed cart store.
type CartRepository interface {
	// Get retrieves a cart by user ID.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Delete removes a user's cart.
	Delete(ctx context.Context, userID string) error
}
