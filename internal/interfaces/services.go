package interfaces

import (
	"context"

	"github.com/aiveilix/aiveilix/internal/models"
)

// ClientRegistration carries the inputs of a client registration.
type ClientRegistration struct {
	Name         string
	RedirectURIs []string
	Scopes       []string
	Public       bool
	OwnerUserID  string // empty for dynamic (unowned) registration
}

// CodeRequest carries the inputs of an authorization code issue.
type CodeRequest struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	Resource            string
	CodeChallenge       string
	CodeChallengeMethod string
}

// OAuthService is the authorization server: client registry,
// authorization code issuer and token service.
type OAuthService interface {
	// Client registry
	RegisterClient(ctx context.Context, reg ClientRegistration) (*models.Client, string, error)
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
	ValidateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error)
	ListClientsByOwner(ctx context.Context, userID string) ([]*models.Client, error)
	DeleteClient(ctx context.Context, clientID, ownerUserID string) error
	BindOwner(ctx context.Context, clientID, userID string) error
	RedirectURITrusted(client *models.Client, redirectURI string) bool
	ValidateScope(client *models.Client, requested string) (string, error)

	// Authorization codes
	IssueCode(ctx context.Context, req CodeRequest) (string, error)
	ConsumeCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*models.AuthorizationCode, error)

	// Tokens
	IssueTokens(ctx context.Context, userID, clientID, scope, resource string) (*models.TokenResponse, error)
	RefreshTokens(ctx context.Context, refreshToken, clientID string) (*models.TokenResponse, error)
	ValidateAccessToken(ctx context.Context, token string) (*models.AccessToken, error)
	RevokeToken(ctx context.Context, token string) error

	// Maintenance
	PurgeExpired(ctx context.Context) error
}

// CredentialBridge resolves bearer credentials to a Principal and
// enforces scope and bucket access.
type CredentialBridge interface {
	Resolve(ctx context.Context, credential string) (*models.Principal, error)
	CheckScope(principal *models.Principal, required string) error
	CheckBucketAccess(ctx context.Context, principal *models.Principal, bucketID string) (*models.Bucket, error)
	FilterBuckets(principal *models.Principal, buckets []*models.Bucket) []*models.Bucket
}

// ProtocolDispatcher handles MCP JSON-RPC requests. A nil principal is
// permitted for discovery methods only.
type ProtocolDispatcher interface {
	Dispatch(ctx context.Context, principal *models.Principal, req *models.RPCRequest) *models.RPCResponse
	Tools() []models.Tool
	StaticResources() []models.Resource
}
