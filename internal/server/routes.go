package server

import (
	"net/http"

	"github.com/aiveilix/aiveilix/internal/common"
)

// registerRoutes sets up all routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Well-known metadata
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleAuthorizationServerMetadata)
	mux.HandleFunc("/.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)
	mux.HandleFunc("/.well-known/openid-configuration", s.handleAuthorizationServerMetadata)

	// OAuth
	mux.HandleFunc("/oauth/authorize", s.handleOAuthAuthorize)
	mux.HandleFunc("/oauth/approve", s.handleOAuthApprove)
	mux.HandleFunc("/oauth/token", s.handleOAuthToken)
	mux.HandleFunc("/oauth/register", s.handleOAuthRegister)
	mux.HandleFunc("/oauth/revoke", s.handleOAuthRevoke)

	// Owner-bound client management
	mux.HandleFunc("/api/oauth/clients/", s.handleClientDelete)
	mux.HandleFunc("/api/oauth/clients", s.handleClients)

	// MCP
	mux.HandleFunc("/mcp/protocol/sse", s.handleMCPSSE)
	mux.HandleFunc("/mcp/protocol", s.handleMCPProtocol)
	mux.HandleFunc("/mcp/info", s.handleMCPInfo)
	mux.HandleFunc("/mcp/tools", s.handleMCPTools)
	mux.HandleFunc("/mcp/resources/read", s.handleMCPResourceRead)
	mux.HandleFunc("/mcp/resources", s.handleMCPResources)

	// System
	mux.HandleFunc("/api/health", s.handleHealth)
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	storageStatus := "ok"
	status := http.StatusOK
	if err := s.app.Storage.Ping(r.Context()); err != nil {
		storageStatus = err.Error()
		status = http.StatusServiceUnavailable
	}

	WriteJSON(w, status, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"storage": storageStatus,
	})
}
