// Package auth bridges bearer credentials (OAuth access tokens and opaque
// API keys) to a single Principal and enforces scope and bucket access.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/aiveilix/aiveilix/internal/services/oauth"
)

// Resolution and access errors. Credential failures collapse into one
// generic error so callers cannot probe which credential type existed.
var (
	ErrInvalidCredential = errors.New("Invalid token or API key")
	ErrBucketNotFound    = errors.New("bucket not found")
	ErrAccessDenied      = errors.New("access denied")
)

// MissingScopeError reports a scope the principal lacks.
type MissingScopeError struct {
	Scope string
}

func (e *MissingScopeError) Error() string {
	return fmt.Sprintf("missing required scope: %s", e.Scope)
}

// apiScopeMap maps stored API key scopes to MCP scopes.
var apiScopeMap = map[string][]string{
	"read":  {"read:buckets", "read:files"},
	"write": {"write:buckets"},
	"query": {"query"},
	"chat":  {"chat"},
	"full":  {"full"},
}

// legacyOAuthFirstLen: unprefixed credentials longer than this try the
// OAuth path first. Kept only for credentials minted before prefixing.
const legacyOAuthFirstLen = 60

// Bridge implements interfaces.CredentialBridge.
type Bridge struct {
	oauth     interfaces.OAuthService
	keys      interfaces.APIKeyStore
	knowledge interfaces.KnowledgeClient
	logger    *common.Logger
}

// NewBridge creates the credential bridge.
func NewBridge(oauthSvc interfaces.OAuthService, keys interfaces.APIKeyStore, knowledge interfaces.KnowledgeClient, logger *common.Logger) *Bridge {
	return &Bridge{
		oauth:     oauthSvc,
		keys:      keys,
		knowledge: knowledge,
		logger:    logger,
	}
}

// Resolve maps a bearer credential to a Principal. Prefixed credentials
// dispatch directly; unprefixed ones fall back to the legacy length
// heuristic, trying both paths.
func (b *Bridge) Resolve(ctx context.Context, credential string) (*models.Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	switch {
	case strings.HasPrefix(credential, models.AccessTokenPrefix):
		return b.resolveOAuth(ctx, credential)
	case strings.HasPrefix(credential, models.APIKeyPrefix):
		return b.resolveAPIKey(ctx, credential)
	}

	if len(credential) > legacyOAuthFirstLen {
		if p, err := b.resolveOAuth(ctx, credential); err == nil {
			return p, nil
		}
		return b.resolveAPIKey(ctx, credential)
	}
	if p, err := b.resolveAPIKey(ctx, credential); err == nil {
		return p, nil
	}
	return b.resolveOAuth(ctx, credential)
}

func (b *Bridge) resolveOAuth(ctx context.Context, token string) (*models.Principal, error) {
	record, err := b.oauth.ValidateAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, oauth.ErrTokenInvalid) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	// OAuth principals are never bucket-restricted.
	return &models.Principal{
		UserID:   record.UserID,
		AuthType: models.AuthTypeOAuth,
		ClientID: record.ClientID,
		Scopes:   strings.Fields(record.Scope),
	}, nil
}

func (b *Bridge) resolveAPIKey(ctx context.Context, key string) (*models.Principal, error) {
	record, err := b.keys.GetKeyByHash(ctx, oauth.HashCredential(key))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	if !record.Active || record.Expired(time.Now()) {
		return nil, ErrInvalidCredential
	}

	// Best effort; a failed timestamp write must not fail auth.
	if err := b.keys.UpdateKeyLastUsed(ctx, record.KeyID, time.Now()); err != nil {
		b.logger.Warn().Err(err).Str("key_id", record.KeyID).Msg("Failed to update api key last_used_at")
	}

	return &models.Principal{
		UserID:         record.UserID,
		AuthType:       models.AuthTypeAPIKey,
		APIKeyID:       record.KeyID,
		Scopes:         mapAPIScopes(record.Scopes),
		AllowedBuckets: record.AllowedBuckets,
	}, nil
}

// mapAPIScopes translates stored API key scopes to MCP scopes. Unknown
// scopes are ignored.
func mapAPIScopes(stored []string) []string {
	var scopes []string
	seen := make(map[string]bool)
	for _, s := range stored {
		for _, mapped := range apiScopeMap[s] {
			if !seen[mapped] {
				seen[mapped] = true
				scopes = append(scopes, mapped)
			}
		}
	}
	return scopes
}

// CheckScope verifies the principal holds the required scope. "full" and
// "*" bypass individual checks.
func (b *Bridge) CheckScope(principal *models.Principal, required string) error {
	if principal.HasScope(required) {
		return nil
	}
	return &MissingScopeError{Scope: required}
}

// CheckBucketAccess verifies the principal may touch the bucket and
// returns it. Unknown buckets and buckets outside an API key's
// allowed_buckets read as not found; ownership violations read as denied.
func (b *Bridge) CheckBucketAccess(ctx context.Context, principal *models.Principal, bucketID string) (*models.Bucket, error) {
	bucket, err := b.knowledge.GetBucket(ctx, bucketID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrBucketNotFound
		}
		return nil, err
	}

	if bucket.OwnerUserID != principal.UserID {
		return nil, ErrAccessDenied
	}

	if principal.AuthType == models.AuthTypeAPIKey && principal.AllowedBuckets != nil {
		allowed := false
		for _, id := range principal.AllowedBuckets {
			if id == bucketID {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, ErrBucketNotFound
		}
	}

	return bucket, nil
}

// FilterBuckets drops buckets outside an API key's allowed set. OAuth
// principals see everything they own.
func (b *Bridge) FilterBuckets(principal *models.Principal, buckets []*models.Bucket) []*models.Bucket {
	if principal.AuthType != models.AuthTypeAPIKey || principal.AllowedBuckets == nil {
		return buckets
	}
	allowed := make(map[string]bool, len(principal.AllowedBuckets))
	for _, id := range principal.AllowedBuckets {
		allowed[id] = true
	}
	var filtered []*models.Bucket
	for _, bucket := range buckets {
		if allowed[bucket.ID] {
			filtered = append(filtered, bucket)
		}
	}
	return filtered
}

// Compile-time check
var _ interfaces.CredentialBridge = (*Bridge)(nil)
