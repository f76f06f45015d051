package domain

import "time"

// CarrierToken is a persisted bearer token for the carrier API. Only one
// token is active at a time; refreshing deactivates prior rows.
type CarrierToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token has passed its expiry at the given time.
func (t *CarrierToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
