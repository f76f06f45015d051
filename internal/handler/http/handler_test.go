package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vastraline/fulfillment/internal/carrier"
	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/event"
	"github.com/vastraline/fulfillment/internal/payment"
	"github.com/vastraline/fulfillment/internal/repository"
	"github.com/vastraline/fulfillment/pkg/httputil"
	pkgkafka "github.com/vastraline/fulfillment/pkg/kafka"
	"github.com/vastraline/fulfillment/pkg/middleware"
)

// --- Mock repositories ---

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
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
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
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
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

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

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

// --- Test helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:19092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

// testTokenValidator treats the bearer token as "userID:role", which lets
// tests exercise the real auth middleware without minting JWTs.
func testTokenValidator(token string) (*middleware.Claims, error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed test token")
	}
	return &middleware.Claims{UserID: parts[0], Role: parts[1]}, nil
}

func bearerToken(userID, role string) string {
	return "Bearer " + userID + ":" + role
}

// decodeResponse reads the response body into the httputil.Response struct.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

// dataField re-marshals resp.Data into dst so tests can assert on typed views.
func dataField(t *testing.T, resp httputil.Response, dst any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

// sampleOrder returns a realistic paid-for order for test expectations.
func sampleOrder() *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:     "550e8400-e29b-41d4-a716-446655440001",
		UserID: "user-456",
		Status: domain.StatusPending,
		Items: []domain.OrderItem{
			{
				ID:        "550e8400-e29b-41d4-a716-446655440010",
				OrderID:   "550e8400-e29b-41d4-a716-446655440001",
				ProductID: "550e8400-e29b-41d4-a716-446655440020",
				Name:      "Banarasi Silk Saree",
				SKU:       "SAREE-01",
				Color:     "Red",
				Price:     2500,
				Quantity:  2,
				Subtotal:  5000,
			},
		},
		SubtotalAmount: 5000,
		TotalAmount:    5000,
		Currency:       "INR",
		ShippingAddress: &domain.Address{
			Name:       "Asha Verma",
			Phone:      "9876543210",
			Line:       "12 MG Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Country:    "India",
		},
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// sampleShipment returns a shipment with an assigned waybill.
func sampleShipment() *domain.Shipment {
	now := time.Now().UTC()
	return &domain.Shipment{
		ID:                "660e8400-e29b-41d4-a716-446655440001",
		OrderID:           "550e8400-e29b-41d4-a716-446655440001",
		CarrierOrderID:    "90001",
		CarrierShipmentID: "80001",
		AWB:               "AWB9988",
		CourierID:         "24",
		CourierName:       "Bluedart",
		Status:            domain.StatusShipped,
		WeightKg:          1.0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
