package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vastraline/fulfillment/internal/domain"
	"github.com/vastraline/fulfillment/internal/repository"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// TokenManager owns the carrier bearer token lifecycle: an in-memory cache
// in front of the persisted token store, with lazy re-authentication when
// both are empty or expired. A mutex single-flights refreshes so concurrent
// requests do not stampede the carrier's login endpoint.
type TokenManager struct {
	repo     repository.TokenRepository
	client   Doer
	baseURL  string
	email    string
	password string
	ttl      time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cached *domain.CarrierToken

	now func() time.Time
}

// NewTokenManager creates a token manager backed by the given store.
func NewTokenManager(repo repository.TokenRepository, client Doer, baseURL, email, password string, ttl time.Duration, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		repo:     repo,
		client:   client,
		baseURL:  baseURL,
		email:    email,
		password: password,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Token returns a valid bearer token, authenticating with the carrier only
// when neither the cache nor the store holds an unexpired one.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()

	if m.cached != nil && m.cached.IsActive && !m.cached.Expired(now) {
		return m.cached.Token, nil
	}
	m.cached = nil

	stored, err := m.repo.GetActive(ctx)
	if err == nil && !stored.Expired(now) {
		m.cached = stored
		return stored.Token, nil
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return "", fmt.Errorf("load carrier token: %w", err)
	}

	return m.refreshLocked(ctx)
}

// Refresh discards any cached or stored token and authenticates again.
// Called after the carrier rejects a request with 401.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cached = nil
	if err := m.repo.DeactivateAll(ctx); err != nil {
		return "", fmt.Errorf("deactivate carrier tokens: %w", err)
	}

	return m.refreshLocked(ctx)
}

// Invalidate drops the cached token and deactivates all stored rows without
// authenticating again.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cached = nil
	if err := m.repo.DeactivateAll(ctx); err != nil {
		return fmt.Errorf("deactivate carrier tokens: %w", err)
	}
	return nil
}

// refreshLocked authenticates, persists, and caches a new token.
// Callers must hold m.mu.
func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	raw, err := m.authenticate(ctx)
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	token := &domain.CarrierToken{
		ID:        uuid.New().String(),
		Token:     raw,
		ExpiresAt: now.Add(m.ttl),
		IsActive:  true,
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, token); err != nil {
		return "", fmt.Errorf("persist carrier token: %w", err)
	}

	m.cached = token
	m.logger.InfoContext(ctx, "carrier token refreshed",
		slog.Time("expires_at", token.ExpiresAt),
	)

	return raw, nil
}

// authenticate logs in to the carrier and returns the raw bearer token.
func (m *TokenManager) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{Email: m.email, Password: m.password})
	if err != nil {
		return "", fmt.Errorf("marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/external/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		return "", apperrors.Upstream("carrier", fmt.Errorf("auth request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperrors.Upstream("carrier", fmt.Errorf("auth failed with status %d: %s", resp.StatusCode, respBody))
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", apperrors.Upstream("carrier", fmt.Errorf("decode auth response: %w", err))
	}
	if auth.Token == "" {
		return "", apperrors.Upstream("carrier", errors.New("auth response contained no token"))
	}

	return auth.Token, nil
}
