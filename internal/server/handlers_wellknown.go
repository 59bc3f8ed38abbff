package server

import (
	"net/http"

	"github.com/aiveilix/aiveilix/internal/services/oauth"
)

// handleAuthorizationServerMetadata handles GET
// /.well-known/oauth-authorization-server (RFC 8414) and its
// /.well-known/openid-configuration alias.
func (s *Server) handleAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	issuer := s.app.Config.Issuer()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/authorize",
		"token_endpoint":                        issuer + "/oauth/token",
		"registration_endpoint":                 issuer + "/oauth/register",
		"revocation_endpoint":                   issuer + "/oauth/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256", "plain"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post", "none"},
		"scopes_supported":                      oauth.SupportedScopes,
	})
}

// handleProtectedResourceMetadata handles GET
// /.well-known/oauth-protected-resource (RFC 9728).
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	issuer := s.app.Config.Issuer()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"resource":                 s.app.Config.ResourceURL(),
		"authorization_servers":    []string{issuer},
		"bearer_methods_supported": []string{"header"},
		"scopes_supported":         oauth.SupportedScopes,
		"mcp_endpoint":             issuer + "/mcp/protocol",
		"mcp_sse_endpoint":         issuer + "/mcp/protocol/sse",
	})
}
