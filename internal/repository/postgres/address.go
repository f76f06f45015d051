package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/pkg/database"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

const addressColumns = `id, user_id, name, phone, email, address_line, address_line_2,
	city, state, postal_code, country, is_default, created_at, updated_at`

// AddressRepository implements repository.AddressRepository using PostgreSQL.
type AddressRepository struct {
	pool database.DBTX
}

// NewAddressRepository creates a new PostgreSQL-backed address repository.
func NewAddressRepository(pool database.DBTX) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// Create inserts a new address. When the address is marked default, the
// user's previous default is cleared inside the same transaction so at most
// one default exists per user.
func (r *AddressRepository) Create(ctx context.Context, a *domain.Address) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default`,
			a.UserID,
		); err != nil {
			return fmt.Errorf("clear previous default address: %w", err)
		}
	}

	query := `
		INSERT INTO addresses (id, user_id, name, phone, email, address_line, address_line_2, city, state, postal_code, country, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = tx.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.Name,
		a.Phone,
		a.Email,
		a.Line,
		a.Line2,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
		a.IsDefault,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an address owned by the given user. An address belonging
// to another user is reported as not found rather than forbidden.
func (r *AddressRepository) GetByID(ctx context.Context, id, userID string) (*domain.Address, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM addresses
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted`, addressColumns)

	return r.scanOne(r.pool.QueryRow(ctx, query, id, userID))
}

// GetDefault retrieves the user's default address.
func (r *AddressRepository) GetDefault(ctx context.Context, userID string) (*domain.Address, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM addresses
		WHERE user_id = $1 AND is_default AND NOT is_deleted
		ORDER BY updated_at DESC
		LIMIT 1`, addressColumns)

	return r.scanOne(r.pool.QueryRow(ctx, query, userID))
}

func (r *AddressRepository) scanOne(row pgx.Row) (*domain.Address, error) {
	var a domain.Address
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Phone,
		&a.Email,
		&a.Line,
		&a.Line2,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.IsDefault,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan address: %w", err)
	}
	return &a, nil
}
