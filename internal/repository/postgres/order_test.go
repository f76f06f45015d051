package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/repository"
	"github.com/vastraline/fulfillment/pkg/database"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

func newOrderTestRepo(t *testing.T) (*OrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewOrderRepository(mock), mock
}

func sampleOrder() *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:     "order-001",
		UserID: "user-001",
		Status: domain.StatusPending,
		Items: []domain.OrderItem{
			{ID: "item-001", OrderID: "order-001", ProductID: "prod-001", Name: "Silk Saree", SKU: "SAREE-01", Color: "Red", Price: 2500, Quantity: 2, Subtotal: 5000},
			{ID: "item-002", OrderID: "order-001", ProductID: "prod-002", Name: "Cotton Kurta", SKU: "KURTA-07", Color: "White", Price: 1200, Quantity: 1, Subtotal: 1200},
		},
		SubtotalAmount: 6200,
		TotalAmount:    6200,
		Currency:       "INR",
		ShippingAddress: &domain.Address{
			Name: "Asha Verma", Phone: "9876543210", Line: "12 MG Road",
			City: "Bengaluru", State: "Karnataka", PostalCode: "560001", Country: "India",
		},
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func orderQueryColumns() []string {
	return []string{
		"id", "user_id", "status", "subtotal_amount", "discount_amount",
		"shipping_amount", "total_amount", "currency", "shipping_address",
		"payment_status", "provider_order_id", "provider_payment_id",
		"tracking_id", "notes", "created_at", "updated_at", "items",
	}
}

func orderQueryRow(t *testing.T, o *domain.Order) []any {
	t.Helper()

	shippingJSON, err := json.Marshal(o.ShippingAddress)
	require.NoError(t, err)
	itemsJSON, err := json.Marshal(o.Items)
	require.NoError(t, err)

	return []any{
		o.ID, o.UserID, o.Status, o.SubtotalAmount, o.DiscountAmount,
		o.ShippingAmount, o.TotalAmount, o.Currency, shippingJSON,
		o.PaymentStatus, o.ProviderOrderID, o.ProviderPayment,
		o.TrackingID, o.Notes, o.CreatedAt, o.UpdatedAt, itemsJSON,
	}
}

func TestOrderRepository_Create_Success(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	o := sampleOrder()
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(
			o.ID, o.UserID, o.Status, o.SubtotalAmount, o.DiscountAmount,
			o.ShippingAmount, o.TotalAmount, o.Currency, shippingJSON,
			o.PaymentStatus, o.ProviderOrderID, o.ProviderPayment,
			o.PaymentSignature, o.TrackingID, o.Notes, o.CreatedAt, o.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	for _, item := range o.Items {
		mock.ExpectExec("INSERT INTO order_items").
			WithArgs(item.ID, item.OrderID, item.ProductID, item.Name, item.SKU, item.Color, item.Price, item.Quantity).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	mock.ExpectCommit()

	err = repo.Create(context.Background(), o)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_ItemInsertError(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), o)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert order item")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_Success(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	o := sampleOrder()
	rows := pgxmock.NewRows(orderQueryColumns()).AddRow(orderQueryRow(t, o)...)

	mock.ExpectQuery("SELECT .+ FROM orders o").
		WithArgs(o.ID).
		WillReturnRows(rows)

	result, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, result.ID)
	assert.Equal(t, o.TotalAmount, result.TotalAmount)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Silk Saree", result.Items[0].Name)
	assert.Equal(t, int64(5000), result.Items[0].Subtotal)
	require.NotNil(t, result.ShippingAddress)
	assert.Equal(t, "Bengaluru", result.ShippingAddress.City)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM orders o").
		WithArgs("order-missing").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), "order-missing")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByTrackingID_Success(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	o := sampleOrder()
	o.TrackingID = "AWB9988"
	rows := pgxmock.NewRows(orderQueryColumns()).AddRow(orderQueryRow(t, o)...)

	mock.ExpectQuery("SELECT .+ FROM orders o").
		WithArgs("AWB9988").
		WillReturnRows(rows)

	result, err := repo.GetByTrackingID(context.Background(), "AWB9988")
	require.NoError(t, err)
	assert.Equal(t, o.ID, result.ID)
	assert.Equal(t, "AWB9988", result.TrackingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_FiltersAndItems(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	o := sampleOrder()
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	require.NoError(t, err)

	listRows := pgxmock.NewRows([]string{
		"id", "user_id", "status", "subtotal_amount", "discount_amount",
		"shipping_amount", "total_amount", "currency", "shipping_address",
		"payment_status", "provider_order_id", "provider_payment_id",
		"tracking_id", "notes", "created_at", "updated_at", "total_count",
	}).AddRow(
		o.ID, o.UserID, o.Status, o.SubtotalAmount, o.DiscountAmount,
		o.ShippingAmount, o.TotalAmount, o.Currency, shippingJSON,
		o.PaymentStatus, o.ProviderOrderID, o.ProviderPayment,
		o.TrackingID, o.Notes, o.CreatedAt, o.UpdatedAt, 7,
	)

	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs(o.UserID, 20, 0).
		WillReturnRows(listRows)

	itemRows := pgxmock.NewRows([]string{
		"id", "order_id", "product_id", "name", "sku", "color", "price", "quantity", "subtotal",
	}).
		AddRow("item-001", o.ID, "prod-001", "Silk Saree", "SAREE-01", "Red", int64(2500), 2, int64(5000)).
		AddRow("item-002", o.ID, "prod-002", "Cotton Kurta", "KURTA-07", "White", int64(1200), 1, int64(1200))

	mock.ExpectQuery("SELECT .+ FROM order_items").
		WithArgs([]string{o.ID}).
		WillReturnRows(itemRows)

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{
		UserID:  strPtr(o.UserID),
		Page:    1,
		PerPage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, "item-001", orders[0].Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus_NotFound(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.StatusShipped, pgxmock.AnyArg(), "order-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "order-missing", domain.StatusShipped)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_MarkPaid_Success(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.PaymentStatusPaid, "pay_abc", "sig-valid", pgxmock.AnyArg(), "order-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.MarkPaid(context.Background(), "order-001", "pay_abc", "sig-valid")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_SetTracking_Success(t *testing.T) {
	repo, mock := newOrderTestRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE orders").
		WithArgs("AWB9988", domain.StatusShipped, pgxmock.AnyArg(), "order-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.SetTracking(context.Background(), "order-001", "AWB9988", domain.StatusShipped)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
