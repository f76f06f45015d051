package carrier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vastraline/fulfillment/internal/domain"
	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// --- In-memory token store ---

type memTokenRepo struct {
	tokens []*domain.CarrierToken
}

func (r *memTokenRepo) GetActive(ctx context.Context) (*domain.CarrierToken, error) {
	for i := len(r.tokens) - 1; i >= 0; i-- {
		if r.tokens[i].IsActive {
			return r.tokens[i], nil
		}
	}
	return nil, apperrors.NotFound("carrier token", "active")
}

func (r *memTokenRepo) Create(ctx context.Context, token *domain.CarrierToken) error {
	for _, t := range r.tokens {
		t.IsActive = false
	}
	r.tokens = append(r.tokens, token)
	return nil
}

func (r *memTokenRepo) DeactivateAll(ctx context.Context) error {
	for _, t := range r.tokens {
		t.IsActive = false
	}
	return nil
}

// --- Test helpers ---

type plainDoer struct{}

func (plainDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req.WithContext(ctx))
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newAuthServer serves the carrier login endpoint, handing out tok-1, tok-2,
// ... and counting login calls.
func newAuthServer(t *testing.T, logins *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/external/auth/login" {
			http.NotFound(w, r)
			return
		}
		n := logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token": "tok-%d"}`, n)
	}))
}

func newTestManager(repo *memTokenRepo, baseURL string) *TokenManager {
	return NewTokenManager(repo, plainDoer{}, baseURL, "ops@example.com", "secret", 24*time.Hour, newTestLogger())
}

// --- Tests ---

func TestToken_AuthenticatesOnceAndCaches(t *testing.T) {
	var logins atomic.Int32
	srv := newAuthServer(t, &logins)
	defer srv.Close()

	m := newTestManager(&memTokenRepo{}, srv.URL)
	ctx := context.Background()

	tok1, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok1)

	tok2, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok2)
	assert.Equal(t, int32(1), logins.Load())
}

func TestToken_ReusesStoredTokenAcrossManagers(t *testing.T) {
	var logins atomic.Int32
	srv := newAuthServer(t, &logins)
	defer srv.Close()

	repo := &memTokenRepo{}
	ctx := context.Background()

	first := newTestManager(repo, srv.URL)
	tok, err := first.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// A fresh manager instance (cold cache) finds the persisted token.
	second := newTestManager(repo, srv.URL)
	tok, err = second.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), logins.Load())
}

func TestToken_ExpiredTokenTriggersReauth(t *testing.T) {
	var logins atomic.Int32
	srv := newAuthServer(t, &logins)
	defer srv.Close()

	repo := &memTokenRepo{}
	m := newTestManager(repo, srv.URL)
	ctx := context.Background()

	_, err := m.Token(ctx)
	require.NoError(t, err)

	// Move the clock past the 24h TTL.
	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	tok, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), logins.Load())

	// The replacement is cached; no further logins.
	_, err = m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestRefresh_ReplacesToken(t *testing.T) {
	var logins atomic.Int32
	srv := newAuthServer(t, &logins)
	defer srv.Close()

	repo := &memTokenRepo{}
	m := newTestManager(repo, srv.URL)
	ctx := context.Background()

	tok, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = m.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)

	// Only the replacement row is active in the store.
	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", active.Token)
}

func TestInvalidate_ForcesReauthOnNextUse(t *testing.T) {
	var logins atomic.Int32
	srv := newAuthServer(t, &logins)
	defer srv.Close()

	repo := &memTokenRepo{}
	m := newTestManager(repo, srv.URL)
	ctx := context.Background()

	_, err := m.Token(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Invalidate(ctx))

	tok, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), logins.Load())
}

func TestToken_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "bad credentials"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	m := newTestManager(&memTokenRepo{}, srv.URL)

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestToken_EmptyTokenInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token": ""}`)
	}))
	defer srv.Close()

	m := newTestManager(&memTokenRepo{}, srv.URL)

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}
