// Package oauth implements the authorization server: dynamic client
// registration, authorization codes with PKCE, and opaque token issuance
// with refresh rotation.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
)

// Scopes the authorization server knows about.
var SupportedScopes = []string{"read:buckets", "read:files", "write:buckets", "query", "chat", "offline_access"}

// DefaultGrantedScopes are granted to dynamically registered clients.
var DefaultGrantedScopes = []string{"read:buckets", "read:files", "query", "chat", "offline_access"}

// AllowedRedirectURIs are trusted for any client regardless of
// registration, covering the known MCP connector callbacks.
var AllowedRedirectURIs = []string{
	"https://chatgpt.com/connector_platform_oauth_redirect",
	"https://platform.openai.com/apps-manage/oauth",
	"https://claude.ai/oauth/callback",
	"https://claude.ai/api/mcp/auth_callback",
	"https://aiveilix.com/oauth/callback",
	"https://www.aiveilix.com/oauth/callback",
	"https://aiveilix-427f3.web.app/oauth/callback",
	"https://aiveilix-427f3.firebaseapp.com/oauth/callback",
	"http://localhost:6677/oauth/callback",
	"http://localhost:7223/oauth/callback",
	"http://127.0.0.1:6677/oauth/callback",
	"http://127.0.0.1:7223/oauth/callback",
}

// Service implements interfaces.OAuthService.
type Service struct {
	store  interfaces.OAuthStore
	config *common.Config
	logger *common.Logger
}

// NewService creates the authorization server service.
func NewService(store interfaces.OAuthStore, config *common.Config, logger *common.Logger) *Service {
	return &Service{
		store:  store,
		config: config,
		logger: logger,
	}
}

// randomToken returns nBytes of cryptographic randomness, URL-safe encoded.
func randomToken(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// hashToken returns the SHA-256 hex digest used as storage key for codes,
// tokens and API keys.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashCredential is the exported form of hashToken for other packages
// that store or look up opaque credentials.
func HashCredential(credential string) string {
	return hashToken(credential)
}

// normalizeScope collapses whitespace in a scope string.
func normalizeScope(scope string) string {
	return strings.Join(strings.Fields(scope), " ")
}

// Compile-time check
var _ interfaces.OAuthService = (*Service)(nil)
