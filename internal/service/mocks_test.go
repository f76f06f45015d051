package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/vastraline/fulfillment/internal/carrier"
	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/event"
	"github.com/vastraline/fulfillment/internal/payment"
	"github.com/vastraline/fulfillment/internal/repository"
	pkgkafka "github.com/vastraline/fulfillment/pkg/kafka"
)

// --- Mock Repositories ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error) {
	args := m.Called(ctx, trackingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockOrderRepository) SetProviderOrder(ctx context.Context, id string, providerOrderID string) error {
	args := m.Called(ctx, id, providerOrderID)
	return args.Error(0)
}

func (m *mockOrderRepository) MarkPaid(ctx context.Context, id string, providerPaymentID, signature string) error {
	args := m.Called(ctx, id, providerPaymentID, signature)
	return args.Error(0)
}

func (m *mockOrderRepository) SetTracking(ctx context.Context, id string, trackingID string, status string) error {
	args := m.Called(ctx, id, trackingID, status)
	return args.Error(0)
}

type mockAddressRepository struct {
	mock.Mock
}

func (m *mockAddressRepository) Create(ctx context.Context, addr *domain.Address) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *mockAddressRepository) GetByID(ctx context.Context, id, userID string) (*domain.Address, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

func (m *mockAddressRepository) GetDefault(ctx context.Context, userID string) (*domain.Address, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

type mockShipmentRepository struct {
	mock.Mock
}

func (m *mockShipmentRepository) Create(ctx context.Context, shipment *domain.Shipment) error {
	args := m.Called(ctx, shipment)
	return args.Error(0)
}

func (m *mockShipmentRepository) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Shipment), args.Error(1)
}

func (m *mockShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Shipment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Shipment), args.Error(1)
}

func (m *mockShipmentRepository) GetByCarrierOrderID(ctx context.Context, carrierOrderID string) (*domain.Shipment, error) {
	args := m.Called(ctx, carrierOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Shipment), args.Error(1)
}

func (m *mockShipmentRepository) GetByCarrierShipmentID(ctx context.Context, carrierShipmentID string) (*domain.Shipment, error) {
	args := m.Called(ctx, carrierShipmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Shipment), args.Error(1)
}

func (m *mockShipmentRepository) List(ctx context.Context, filter repository.ShipmentFilter) ([]domain.Shipment, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Shipment), args.Int(1), args.Error(2)
}

func (m *mockShipmentRepository) Update(ctx context.Context, shipment *domain.Shipment) error {
	args := m.Called(ctx, shipment)
	return args.Error(0)
}

func (m *mockShipmentRepository) AppendWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Product), args.Error(1)
}

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Delete(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Mock Payment Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string {
	return "mock"
}

func (m *mockGateway) CreateOrder(ctx context.Context, input *payment.CreateOrderInput) (*payment.ProviderOrder, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ProviderOrder), args.Error(1)
}

func (m *mockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	args := m.Called(orderID, paymentID, signature)
	return args.Bool(0)
}

// --- Mock Carrier API ---

type mockCarrierAPI struct {
	mock.Mock
}

func (m *mockCarrierAPI) CreateOrder(ctx context.Context, payload *carrier.OrderPayload) (*carrier.CreateOrderResponse, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.CreateOrderResponse), args.Error(1)
}

func (m *mockCarrierAPI) AssignAWB(ctx context.Context, req *carrier.AssignAWBRequest) (*carrier.AssignAWBResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.AssignAWBResponse), args.Error(1)
}

func (m *mockCarrierAPI) RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.PickupResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.PickupResponse), args.Error(1)
}

func (m *mockCarrierAPI) TrackByAWB(ctx context.Context, awb string) (*carrier.TrackingResponse, error) {
	args := m.Called(ctx, awb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.TrackingResponse), args.Error(1)
}

func (m *mockCarrierAPI) TrackByOrderID(ctx context.Context, carrierOrderID string) (*carrier.TrackingResponse, error) {
	args := m.Called(ctx, carrierOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.TrackingResponse), args.Error(1)
}

func (m *mockCarrierAPI) Serviceability(ctx context.Context, req *carrier.ServiceabilityRequest) (*carrier.ServiceabilityResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.ServiceabilityResponse), args.Error(1)
}

func (m *mockCarrierAPI) Cancel(ctx context.Context, carrierOrderIDs []string) error {
	args := m.Called(ctx, carrierOrderIDs)
	return args.Error(0)
}

// --- Mock Shipment Ensurer ---

type mockEnsurer struct {
	mock.Mock
}

func (m *mockEnsurer) EnsureShipment(ctx context.Context, orderID string) (*domain.Shipment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Shipment), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProducer() *event.Producer {
	logger := newTestLogger()
	// Kafka producer that fails silently in tests (no real broker).
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func strPtr(s string) *string {
	return &s
}
