package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/repository"
	"github.com/vastraline/fulfillment/pkg/database"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

const shipmentColumns = `id, order_id, carrier_order_id, carrier_shipment_id, awb, courier_id,
	courier_name, status, label_url, manifest_url, pickup_scheduled_at,
	estimated_delivery, delivered_at, weight_kg, created_at, updated_at`

// ShipmentRepository implements repository.ShipmentRepository using PostgreSQL.
type ShipmentRepository struct {
	pool database.DBTX
}

// NewShipmentRepository creates a new PostgreSQL-backed shipment repository.
func NewShipmentRepository(pool database.DBTX) *ShipmentRepository {
	return &ShipmentRepository{pool: pool}
}

// Create inserts a new shipment. A partial unique index on order_id enforces
// one live shipment per order; a violation maps to ErrAlreadyExists so the
// orchestrator can treat concurrent creation as idempotent.
func (r *ShipmentRepository) Create(ctx context.Context, s *domain.Shipment) error {
	query := `
		INSERT INTO shipments (id, order_id, carrier_order_id, carrier_shipment_id, awb, courier_id, courier_name, status, label_url, manifest_url, pickup_scheduled_at, estimated_delivery, delivered_at, weight_kg, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.OrderID,
		s.CarrierOrderID,
		s.CarrierShipmentID,
		s.AWB,
		s.CourierID,
		s.CourierName,
		s.Status,
		s.LabelURL,
		s.ManifestURL,
		s.PickupScheduledAt,
		s.EstimatedDelivery,
		s.DeliveredAt,
		s.WeightKg,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("shipment", "order_id", s.OrderID)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}

	return nil
}

// GetByID retrieves a shipment by its unique identifier.
func (r *ShipmentRepository) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE id = $1 AND NOT is_deleted`, shipmentColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByOrderID retrieves the live shipment for an order.
func (r *ShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE order_id = $1 AND NOT is_deleted`, shipmentColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, orderID))
}

// GetByCarrierOrderID retrieves a shipment by the carrier's order identifier.
func (r *ShipmentRepository) GetByCarrierOrderID(ctx context.Context, carrierOrderID string) (*domain.Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE carrier_order_id = $1 AND NOT is_deleted`, shipmentColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, carrierOrderID))
}

// GetByCarrierShipmentID retrieves a shipment by the carrier's shipment identifier.
func (r *ShipmentRepository) GetByCarrierShipmentID(ctx context.Context, carrierShipmentID string) (*domain.Shipment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE carrier_shipment_id = $1 AND NOT is_deleted`, shipmentColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, carrierShipmentID))
}

// List returns shipments matching the given filter with the total count.
func (r *ShipmentRepository) List(ctx context.Context, filter repository.ShipmentFilter) ([]domain.Shipment, int, error) {
	conditions := []string{"NOT is_deleted"}
	var args []any
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM shipments
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		shipmentColumns, strings.Join(conditions, " AND "), argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var totalCount int
	shipments := make([]domain.Shipment, 0)

	for rows.Next() {
		var s domain.Shipment
		if err := rows.Scan(
			&s.ID,
			&s.OrderID,
			&s.CarrierOrderID,
			&s.CarrierShipmentID,
			&s.AWB,
			&s.CourierID,
			&s.CourierName,
			&s.Status,
			&s.LabelURL,
			&s.ManifestURL,
			&s.PickupScheduledAt,
			&s.EstimatedDelivery,
			&s.DeliveredAt,
			&s.WeightKg,
			&s.CreatedAt,
			&s.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan shipment row: %w", err)
		}
		shipments = append(shipments, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate shipment rows: %w", err)
	}

	return shipments, totalCount, nil
}

// Update persists mutable shipment fields.
func (r *ShipmentRepository) Update(ctx context.Context, s *domain.Shipment) error {
	query := `
		UPDATE shipments
		SET carrier_shipment_id = $1, awb = $2, courier_id = $3, courier_name = $4,
			status = $5, label_url = $6, manifest_url = $7, pickup_scheduled_at = $8,
			estimated_delivery = $9, delivered_at = $10, is_deleted = $11, updated_at = $12
		WHERE id = $13`

	ct, err := r.pool.Exec(ctx, query,
		s.CarrierShipmentID,
		s.AWB,
		s.CourierID,
		s.CourierName,
		s.Status,
		s.LabelURL,
		s.ManifestURL,
		s.PickupScheduledAt,
		s.EstimatedDelivery,
		s.DeliveredAt,
		s.IsDeleted,
		time.Now().UTC(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("shipment", s.ID)
	}

	return nil
}

// AppendWebhookEvent records one raw carrier callback against a shipment.
// The table is append-only: callbacks are never updated or deleted.
func (r *ShipmentRepository) AppendWebhookEvent(ctx context.Context, e *domain.WebhookEvent) error {
	query := `
		INSERT INTO shipment_webhook_events (id, shipment_id, carrier_order_id, raw_status, derived_status, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.ShipmentID,
		e.CarrierOrderID,
		e.RawStatus,
		e.DerivedStatus,
		e.Payload,
		e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}

	return nil
}

func (r *ShipmentRepository) scanOne(row pgx.Row) (*domain.Shipment, error) {
	var s domain.Shipment
	err := row.Scan(
		&s.ID,
		&s.OrderID,
		&s.CarrierOrderID,
		&s.CarrierShipmentID,
		&s.AWB,
		&s.CourierID,
		&s.CourierName,
		&s.Status,
		&s.LabelURL,
		&s.ManifestURL,
		&s.PickupScheduledAt,
		&s.EstimatedDelivery,
		&s.DeliveredAt,
		&s.WeightKg,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan shipment: %w", err)
	}
	return &s, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
