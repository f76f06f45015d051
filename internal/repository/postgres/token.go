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

// TokenRepository implements repository.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool database.DBTX
}

// NewTokenRepository creates a new PostgreSQL-backed carrier token repository.
func NewTokenRepository(pool database.DBTX) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// GetActive returns the newest active token.
func (r *TokenRepository) GetActive(ctx context.Context) (*domain.CarrierToken, error) {
	query := `
		SELECT id, token, expires_at, is_active, created_at
		FROM carrier_tokens
		WHERE is_active
		ORDER BY created_at DESC
		LIMIT 1`

	var t domain.CarrierToken
	err := r.pool.QueryRow(ctx, query).Scan(
		&t.ID,
		&t.Token,
		&t.ExpiresAt,
		&t.IsActive,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan carrier token: %w", err)
	}

	return &t, nil
}

// Create inserts a new active token, deactivating all prior rows in the same
// transaction so exactly one token is ever active.
func (r *TokenRepository) Create(ctx context.Context, t *domain.CarrierToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE carrier_tokens SET is_active = FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("deactivate prior tokens: %w", err)
	}

	query := `
		INSERT INTO carrier_tokens (id, token, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, query, t.ID, t.Token, t.ExpiresAt, t.IsActive, t.CreatedAt); err != nil {
		return fmt.Errorf("insert carrier token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// DeactivateAll marks every stored token inactive.
func (r *TokenRepository) DeactivateAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `UPDATE carrier_tokens SET is_active = FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("deactivate carrier tokens: %w", err)
	}
	return nil
}
