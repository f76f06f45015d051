package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/event"
	"github.com/vastraline/fulfillment/internal/payment"
	"github.com/vastraline/fulfillment/internal/repository"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// ShipmentEnsurer triggers carrier shipment creation for a paid order.
// Satisfied by *FulfillmentService.
type ShipmentEnsurer interface {
	EnsureShipment(ctx context.Context, orderID string) (*domain.Shipment, error)
}

// AddressInput is an inline shipping address supplied at checkout.
type AddressInput struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Line       string `json:"address"`
	Line2      string `json:"address_2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a *AddressInput) toAddress() *domain.Address {
	return &domain.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Email:      a.Email,
		Line:       a.Line,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// PlaceOrderInput holds the parameters for placing an order from the
// user's cart.
type PlaceOrderInput struct {
	UserID          string
	AddressID       string
	ShippingAddress *AddressInput
	Notes           string
}

// PlaceOrderResult is the outcome of placing an order: the persisted order
// plus the provider-side order the client pays against.
type PlaceOrderResult struct {
	Order           *domain.Order `json:"order"`
	ProviderOrderID string        `json:"provider_order_id"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
}

// ConfirmPaymentInput holds the provider callback fields the client submits
// after completing checkout.
type ConfirmPaymentInput struct {
	UserID    string
	OrderID   string
	PaymentID string
	Signature string
}

// OrderService implements order placement, payment confirmation and
// order retrieval.
type OrderService struct {
	orders      repository.OrderRepository
	addresses   repository.AddressRepository
	products    repository.ProductRepository
	carts       repository.CartRepository
	gateway     payment.Gateway
	fulfillment ShipmentEnsurer
	producer    *event.Producer
	currency    string
	logger      *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orders repository.OrderRepository,
	addresses repository.AddressRepository,
	products repository.ProductRepository,
	carts repository.CartRepository,
	gateway payment.Gateway,
	fulfillment ShipmentEnsurer,
	producer *event.Producer,
	currency string,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:      orders,
		addresses:   addresses,
		products:    products,
		carts:       carts,
		gateway:     gateway,
		fulfillment: fulfillment,
		producer:    producer,
		currency:    currency,
		logger:      logger,
	}
}

// PlaceOrder creates an order from the user's cart and registers it with the
// payment provider. The shipping address is resolved in strict precedence:
// a saved address ID wins over an inline address, which wins over the user's
// default address. The order is persisted before the provider call, so a
// provider outage leaves a pending order that can be retried.
func (s *OrderService) PlaceOrder(ctx context.Context, input *PlaceOrderInput) (*PlaceOrderResult, error) {
	address, err := s.resolveAddress(ctx, input)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.Get(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidInput("cart is empty")
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	productIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve cart products: %w", err)
	}

	orderID := uuid.New().String()
	now := time.Now().UTC()

	items := make([]domain.OrderItem, 0, len(cart.Items))
	var subtotal int64
	for _, ci := range cart.Items {
		item := domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: ci.ProductID,
			Name:      ci.Name,
			SKU:       ci.SKU,
			Price:     ci.Price,
			Quantity:  ci.Quantity,
			Subtotal:  ci.Price * int64(ci.Quantity),
		}
		if p, ok := products[ci.ProductID]; ok {
			item.Color = p.Color
			if item.Name == "" {
				item.Name = p.Name
			}
			if item.SKU == "" {
				item.SKU = p.SKU
			}
		}
		items = append(items, item)
		subtotal += item.Subtotal
	}

	order := &domain.Order{
		ID:              orderID,
		UserID:          input.UserID,
		Status:          domain.StatusPending,
		Items:           items,
		SubtotalAmount:  subtotal,
		TotalAmount:     subtotal,
		Currency:        s.currency,
		ShippingAddress: address,
		PaymentStatus:   domain.PaymentStatusPending,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	providerOrder, err := s.gateway.CreateOrder(ctx, &payment.CreateOrderInput{
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Receipt:  order.ID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "payment provider order creation failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := s.orders.SetProviderOrder(ctx, order.ID, providerOrder.ID); err != nil {
		return nil, fmt.Errorf("record provider order: %w", err)
	}
	order.ProviderOrderID = providerOrder.ID

	if err := s.producer.PublishOrderPlaced(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.placed event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int64("total_amount", order.TotalAmount),
		slog.String("provider_order_id", order.ProviderOrderID),
	)

	return &PlaceOrderResult{
		Order:           order,
		ProviderOrderID: providerOrder.ID,
		Amount:          providerOrder.Amount,
		Currency:        providerOrder.Currency,
	}, nil
}

// resolveAddress picks the shipping address for an order. Exactly one source
// is consulted: a saved address ID, an inline address, or the default.
func (s *OrderService) resolveAddress(ctx context.Context, input *PlaceOrderInput) (*domain.Address, error) {
	if input.AddressID != "" {
		addr, err := s.addresses.GetByID(ctx, input.AddressID, input.UserID)
		if err != nil {
			return nil, fmt.Errorf("get address: %w", err)
		}
		return addr.Snapshot(), nil
	}

	if input.ShippingAddress != nil {
		addr := input.ShippingAddress.toAddress()
		if missing := addr.MissingFields(); len(missing) > 0 {
			return nil, apperrors.InvalidInput(
				"shipping address missing required fields: " + strings.Join(missing, ", "),
			)
		}

		// An inline address is saved to the user's address book so it can be
		// reused on the next order.
		now := time.Now().UTC()
		addr.ID = uuid.New().String()
		addr.UserID = input.UserID
		addr.CreatedAt = now
		addr.UpdatedAt = now
		if err := s.addresses.Create(ctx, addr); err != nil {
			return nil, fmt.Errorf("save shipping address: %w", err)
		}
		return addr.Snapshot(), nil
	}

	addr, err := s.addresses.GetDefault(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidInput("no shipping address provided and no default address on file")
		}
		return nil, fmt.Errorf("get default address: %w", err)
	}
	return addr.Snapshot(), nil
}

// ConfirmPayment verifies the provider's payment signature and marks the
// order paid. A valid confirmation clears the cart and triggers shipment
// creation; repeating it for an already-paid order is a no-op.
func (s *OrderService) ConfirmPayment(ctx context.Context, input *ConfirmPaymentInput) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order for confirmation: %w", err)
	}
	if order.UserID != input.UserID {
		return nil, apperrors.NotFound("order", input.OrderID)
	}

	if order.IsPaid() {
		return order, nil
	}

	if order.ProviderOrderID == "" {
		return nil, apperrors.InvalidInput("order has no provider order to confirm")
	}

	if !s.gateway.VerifySignature(order.ProviderOrderID, input.PaymentID, input.Signature) {
		s.logger.WarnContext(ctx, "payment signature verification failed",
			slog.String("order_id", order.ID),
			slog.String("payment_id", input.PaymentID),
		)
		return nil, apperrors.NotFound("order", input.OrderID)
	}

	if err := s.orders.MarkPaid(ctx, order.ID, input.PaymentID, input.Signature); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	order.PaymentStatus = domain.PaymentStatusPaid
	order.ProviderPayment = input.PaymentID

	if err := s.carts.Delete(ctx, order.UserID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after payment",
			slog.String("user_id", order.UserID),
			slog.String("error", err.Error()),
		)
	}

	if _, err := s.fulfillment.EnsureShipment(ctx, order.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to create shipment after payment",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "payment confirmed",
		slog.String("order_id", order.ID),
		slog.String("payment_id", input.PaymentID),
	)

	return order, nil
}

// GetOrder retrieves an order. Non-admin callers only see their own orders.
func (s *OrderService) GetOrder(ctx context.Context, id, userID, role string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if role != "admin" && order.UserID != userID {
		return nil, apperrors.NotFound("order", id)
	}
	return order, nil
}

// ListOrders returns a paginated list of orders matching the filter.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	return orders, total, nil
}

// UpdateOrderStatus sets an order's status, optionally recording a tracking
// number at the same time. Admin-only.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id, status, trackingID string) (*domain.Order, error) {
	if !domain.IsValidStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for status update: %w", err)
	}
	oldStatus := order.Status

	if trackingID != "" {
		if err := s.orders.SetTracking(ctx, id, trackingID, status); err != nil {
			return nil, fmt.Errorf("set order tracking: %w", err)
		}
		order.TrackingID = trackingID
	} else {
		if err := s.orders.UpdateStatus(ctx, id, status); err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
	}
	order.Status = status

	if err := s.producer.PublishOrderStatusChanged(ctx, id, oldStatus, status, order.TrackingID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}

	return order, nil
}

// TrackByTrackingID looks up an order by its carrier waybill number. Used by
// the public tracking page, so no ownership check applies.
func (s *OrderService) TrackByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error) {
	order, err := s.orders.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("get order by tracking id: %w", err)
	}
	return order, nil
}
