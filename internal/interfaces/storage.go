// Package interfaces defines the contracts between the gateway's layers.
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/aiveilix/aiveilix/internal/models"
)

// ErrNotFound is returned by stores when a record does not exist or,
// for authorization codes, has already been consumed.
var ErrNotFound = errors.New("not found")

// StorageManager coordinates the gateway's persistent stores.
type StorageManager interface {
	OAuthStore() OAuthStore
	APIKeyStore() APIKeyStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// OAuthStore persists clients, authorization codes and token pairs.
// Codes and tokens are keyed by SHA-256 hex hash; plaintext never reaches
// the store.
type OAuthStore interface {
	// Clients
	SaveClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
	ListClientsByOwner(ctx context.Context, userID string) ([]*models.Client, error)
	DeleteClient(ctx context.Context, clientID string) error

	// Authorization codes. ConsumeCode atomically marks the matching unused
	// code as used and returns it; a second call with the same hash returns
	// ErrNotFound. Expiry and PKCE are the caller's concern.
	SaveCode(ctx context.Context, code *models.AuthorizationCode) error
	ConsumeCode(ctx context.Context, codeHash, clientID, redirectURI string) (*models.AuthorizationCode, error)
	PurgeExpiredCodes(ctx context.Context) (int, error)

	// Access tokens
	SaveAccessToken(ctx context.Context, token *models.AccessToken) error
	GetAccessToken(ctx context.Context, tokenHash string) (*models.AccessToken, error)
	RevokeAccessToken(ctx context.Context, tokenHash string) error

	// Refresh tokens
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	UpdateRefreshTokenLastUsed(ctx context.Context, tokenHash string, lastUsedAt time.Time) error

	// RevokeTokensForClient revokes every access and refresh token issued
	// to the client. Used when a client is deleted.
	RevokeTokensForClient(ctx context.Context, clientID string) error
	PurgeExpiredTokens(ctx context.Context) (int, error)
}

// APIKeyStore persists opaque API keys, keyed by SHA-256 hex hash.
type APIKeyStore interface {
	SaveKey(ctx context.Context, key *models.APIKey) error
	GetKey(ctx context.Context, keyID string) (*models.APIKey, error)
	GetKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	ListKeysByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
	DeleteKey(ctx context.Context, keyID string) error
	UpdateKeyLastUsed(ctx context.Context, keyID string, lastUsedAt time.Time) error
}
