package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/payment"
	"github.com/vastraline/fulfillment/internal/repository"
	"github.com/vastraline/fulfillment/internal/service"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
	"github.com/vastraline/fulfillment/pkg/middleware"
)

type orderHandlerMocks struct {
	orders    *mockOrderRepository
	addresses *mockAddressRepository
	products  *mockProductRepository
	carts     *mockCartRepository
	gateway   *mockGateway
	ensurer   *mockEnsurer
}

func newOrderTestRouter(t *testing.T) (http.Handler, *orderHandlerMocks) {
	t.Helper()

	m := &orderHandlerMocks{
		orders:    new(mockOrderRepository),
		addresses: new(mockAddressRepository),
		products:  new(mockProductRepository),
		carts:     new(mockCartRepository),
		gateway:   new(mockGateway),
		ensurer:   new(mockEnsurer),
	}

	svc := service.NewOrderService(
		m.orders, m.addresses, m.products, m.carts,
		m.gateway, m.ensurer, testEventProducer(), "INR", testLogger(),
	)
	handler := NewOrderHandler(svc, testLogger())

	// Mirrors the production route layout for order endpoints.
	r := chi.NewRouter()
	r.Get("/api/v1/track/{trackingId}", handler.TrackOrder)
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(testTokenValidator))

		r.Post("/", handler.PlaceOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/{id}", handler.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Patch("/{id}/status", handler.UpdateOrderStatus)
		})
	})
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(testTokenValidator))
		r.Post("/verify", handler.VerifyPayment)
	})

	return r, m
}

func TestPlaceOrderEndpoint_Success(t *testing.T) {
	router, m := newOrderTestRouter(t)

	cart := &domain.Cart{
		UserID: "user-456",
		Items: []domain.CartItem{
			{ProductID: "prod-1", Name: "Banarasi Silk Saree", SKU: "SAREE-01", Price: 2500, Quantity: 2},
		},
	}
	m.carts.On("Get", mock.Anything, "user-456").Return(cart, nil)
	m.products.On("GetByIDs", mock.Anything, []string{"prod-1"}).
		Return(map[string]domain.Product{}, nil)
	m.addresses.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.Address) bool {
		return a.UserID == "user-456" && a.Line == "12 MG Road"
	})).Return(nil)
	m.orders.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)
	m.gateway.On("CreateOrder", mock.Anything, mock.AnythingOfType("*payment.CreateOrderInput")).
		Return(&payment.ProviderOrder{ID: "order_Rzp123", Amount: 5000, Currency: "INR", Status: "created"}, nil)
	m.orders.On("SetProviderOrder", mock.Anything, mock.AnythingOfType("string"), "order_Rzp123").Return(nil)

	body := []byte(`{
		"shipping_address": {
			"name": "Asha Verma",
			"phone": "9876543210",
			"address": "12 MG Road",
			"city": "Bengaluru",
			"state": "Karnataka",
			"postalCode": "560001",
			"country": "India"
		}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var result service.PlaceOrderResult
	dataField(t, decodeResponse(t, rec), &result)
	assert.Equal(t, "order_Rzp123", result.ProviderOrderID)
	assert.Equal(t, int64(5000), result.Amount)
	assert.Equal(t, "INR", result.Currency)
	m.addresses.AssertExpectations(t)
	m.orders.AssertExpectations(t)
}

func TestPlaceOrderEndpoint_RequiresAuth(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrderEndpoint_RejectsNonJSONContentType(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte("field=value")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPlaceOrderEndpoint_MalformedJSON(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestPlaceOrderEndpoint_IncompleteInlineAddress(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	// phone and postalCode are missing; the saved-address and default-address
	// paths must not be consulted.
	body := []byte(`{
		"shipping_address": {
			"name": "Asha Verma",
			"address": "12 MG Road",
			"city": "Bengaluru",
			"state": "Karnataka",
			"country": "India"
		}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "phone")
	assert.Contains(t, resp.Error.Message, "postalCode")
}

func TestVerifyPaymentEndpoint_Success(t *testing.T) {
	router, m := newOrderTestRouter(t)

	order := sampleOrder()
	order.ProviderOrderID = "order_Rzp123"
	m.orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	m.gateway.On("VerifySignature", "order_Rzp123", "pay_abc", "sig-valid").Return(true)
	m.orders.On("MarkPaid", mock.Anything, order.ID, "pay_abc", "sig-valid").Return(nil)
	m.carts.On("Delete", mock.Anything, "user-456").Return(nil)
	m.ensurer.On("EnsureShipment", mock.Anything, order.ID).Return(sampleShipment(), nil)

	body := []byte(`{"order_id": "` + order.ID + `", "payment_id": "pay_abc", "signature": "sig-valid"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	m.orders.AssertExpectations(t)
	m.ensurer.AssertExpectations(t)
}

func TestVerifyPaymentEndpoint_BadSignatureIs404(t *testing.T) {
	router, m := newOrderTestRouter(t)

	order := sampleOrder()
	order.ProviderOrderID = "order_Rzp123"
	m.orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)
	m.gateway.On("VerifySignature", "order_Rzp123", "pay_abc", "sig-forged").Return(false)

	body := []byte(`{"order_id": "` + order.ID + `", "payment_id": "pay_abc", "signature": "sig-forged"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	m.orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPaymentEndpoint_MissingFields(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "OrderID")
	assert.Contains(t, resp.Error.Fields, "PaymentID")
	assert.Contains(t, resp.Error.Fields, "Signature")
}

func TestGetOrderEndpoint_InvalidUUID(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

func TestGetOrderEndpoint_OtherUsersOrderIs404(t *testing.T) {
	router, m := newOrderTestRouter(t)

	order := sampleOrder()
	m.orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	req.Header.Set("Authorization", bearerToken("user-999", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersEndpoint_CustomerScopedToOwnOrders(t *testing.T) {
	router, m := newOrderTestRouter(t)

	m.orders.On("List", mock.Anything, mock.MatchedBy(func(f repository.OrderFilter) bool {
		return f.UserID != nil && *f.UserID == "user-456"
	})).Return([]domain.Order{*sampleOrder()}, 1, nil)

	// The user_id query parameter must not override the caller's own scope.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?user_id=user-999", nil)
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	m.orders.AssertExpectations(t)
}

func TestListOrdersEndpoint_AdminMayFilterByUser(t *testing.T) {
	router, m := newOrderTestRouter(t)

	m.orders.On("List", mock.Anything, mock.MatchedBy(func(f repository.OrderFilter) bool {
		return f.UserID != nil && *f.UserID == "user-999"
	})).Return([]domain.Order{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?user_id=user-999", nil)
	req.Header.Set("Authorization", bearerToken("admin-1", "admin"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	m.orders.AssertExpectations(t)
}

func TestListOrdersEndpoint_InvalidPage(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=zero", nil)
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderStatusEndpoint_ForbiddenForCustomer(t *testing.T) {
	router, _ := newOrderTestRouter(t)

	order := sampleOrder()
	body := []byte(`{"status": "shipped"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("user-456", "customer"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateOrderStatusEndpoint_AdminSuccess(t *testing.T) {
	router, m := newOrderTestRouter(t)

	order := sampleOrder()
	m.orders.On("UpdateStatus", mock.Anything, order.ID, domain.StatusConfirmed).Return(nil)
	m.orders.On("GetByID", mock.Anything, order.ID).Return(order, nil)

	body := []byte(`{"status": "confirmed"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken("admin-1", "admin"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	m.orders.AssertExpectations(t)
}

func TestTrackOrderEndpoint_PublicAndSlim(t *testing.T) {
	router, m := newOrderTestRouter(t)

	order := sampleOrder()
	order.Status = domain.StatusInTransit
	order.TrackingID = "AWB9988"
	m.orders.On("GetByTrackingID", mock.Anything, "AWB9988").Return(order, nil)

	// No Authorization header: tracking is public.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/track/AWB9988", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var view TrackingView
	dataField(t, decodeResponse(t, rec), &view)
	assert.Equal(t, order.ID, view.OrderID)
	assert.Equal(t, domain.StatusInTransit, view.Status)
	assert.Equal(t, "AWB9988", view.TrackingID)

	// The public view must not leak amounts or addresses.
	raw := rec.Body.String()
	assert.NotContains(t, raw, "total_amount")
	assert.NotContains(t, raw, "shipping_address")
}

func TestTrackOrderEndpoint_UnknownWaybill(t *testing.T) {
	router, m := newOrderTestRouter(t)

	m.orders.On("GetByTrackingID", mock.Anything, "AWB0000").
		Return(nil, apperrors.NotFound("order", "AWB0000"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/track/AWB0000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
