package models

import "time"

// APIKey is an opaque long-lived credential issued by the account system
// and resolved by the gateway. Stored by hash only.
type APIKey struct {
	KeyID          string    `json:"key_id"`
	KeyHash        string    `json:"-"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Scopes         []string  `json:"scopes"`          // stored scopes: read, write, query, chat, full
	AllowedBuckets []string  `json:"allowed_buckets"` // nil = unrestricted
	Active         bool      `json:"active"`
	ExpiresAt      time.Time `json:"expires_at"` // zero = never expires
	CreatedAt      time.Time `json:"created_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
}

// Expired reports whether the key has a deadline in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}
