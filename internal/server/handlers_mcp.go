package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aiveilix/aiveilix/internal/mcp"
	"github.com/aiveilix/aiveilix/internal/models"
)

// ssePingInterval is the keep-alive cadence on the SSE transport.
const ssePingInterval = 15 * time.Second

// resolvePrincipal maps the request's bearer credential to a Principal.
// Returns (nil, false) when a credential was presented but rejected; a
// missing credential yields (nil, true) so discovery methods still work.
func (s *Server) resolvePrincipal(r *http.Request) (*models.Principal, bool) {
	credential := bearerToken(r)
	if credential == "" {
		return nil, true
	}
	principal, err := s.app.Bridge.Resolve(r.Context(), credential)
	if err != nil {
		return nil, false
	}
	return principal, true
}

// handleMCPProtocol handles POST /mcp/protocol, the unary JSON-RPC
// transport. Responses ride on HTTP 200 except auth (401) and timeout
// (504).
func (s *Server) handleMCPProtocol(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, derr := mcp.ParseRequest(body)
	if derr != nil {
		WriteJSON(w, http.StatusOK, mcp.ErrorResponse(nil, derr))
		return
	}

	principal, ok := s.resolvePrincipal(r)
	if !ok {
		resp := mcp.ErrorResponse(req.ID, mcp.AuthRequiredError())
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(
			`Bearer error="invalid_token", resource_metadata="%s/.well-known/oauth-protected-resource"`,
			s.app.Config.Issuer()))
		WriteJSON(w, http.StatusUnauthorized, resp)
		return
	}

	resp := s.app.Dispatcher.Dispatch(r.Context(), principal, req)

	status := mcp.ResponseHTTPStatus(resp)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(
			`Bearer resource_metadata="%s/.well-known/oauth-protected-resource"`,
			s.app.Config.Issuer()))
	}
	WriteJSON(w, status, resp)
}

// writeSSEEvent writes one named event and flushes it to the client.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// handleMCPSSE handles GET /mcp/protocol/sse. Authenticated clients get a
// keep-alive stream; an invalid credential gets a single error event; no
// credential gets the discovery events and the stream closes.
func (s *Server) handleMCPSSE(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	principal, credentialOK := s.resolvePrincipal(r)
	if !credentialOK {
		writeSSEEvent(w, flusher, "error", map[string]interface{}{
			"code":    mcp.CodeAuthRequired,
			"message": "Invalid token or API key",
		})
		return
	}

	writeSSEEvent(w, flusher, "connected", map[string]interface{}{
		"server":  models.MCPServerName,
		"version": models.MCPServerVersion,
	})
	writeSSEEvent(w, flusher, "capabilities", map[string]interface{}{
		"protocolVersion": models.MCPProtocolVersion,
		"serverInfo": map[string]interface{}{
			"name":    models.MCPServerName,
			"version": models.MCPServerVersion,
		},
		"tools":     len(s.app.Dispatcher.Tools()),
		"resources": len(s.app.Dispatcher.StaticResources()),
	})

	// Discovery stream for anonymous clients ends here.
	if principal == nil {
		return
	}

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case t := <-ticker.C:
			writeSSEEvent(w, flusher, "ping", map[string]interface{}{
				"timestamp": t.UTC().Format(time.RFC3339),
			})
		}
	}
}

// handleMCPInfo handles GET /mcp/info: server identity, endpoints and how
// to authenticate. No auth required.
func (s *Server) handleMCPInfo(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	issuer := s.app.Config.Issuer()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name":             models.MCPServerName,
		"version":          models.MCPServerVersion,
		"protocol_version": models.MCPProtocolVersion,
		"endpoints": map[string]interface{}{
			"protocol": issuer + "/mcp/protocol",
			"sse":      issuer + "/mcp/protocol/sse",
			"tools":    issuer + "/mcp/tools",
		},
		"authentication": map[string]interface{}{
			"type":                   "bearer",
			"authorization_endpoint": issuer + "/oauth/authorize",
			"token_endpoint":         issuer + "/oauth/token",
			"registration_endpoint":  issuer + "/oauth/register",
			"api_keys_supported":     true,
		},
	})
}

// handleMCPTools handles GET /mcp/tools. No auth required; scopes gate
// execution, not visibility.
func (s *Server) handleMCPTools(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	tools := s.app.Dispatcher.Tools()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tools": tools,
		"count": len(tools),
	})
}

// dispatchREST runs a synthetic JSON-RPC request for the REST helper
// endpoints and unwraps the result. Domain failures map to 400.
func (s *Server) dispatchREST(w http.ResponseWriter, r *http.Request, principal *models.Principal, method string, params interface{}) {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		rawParams = data
	}

	resp := s.app.Dispatcher.Dispatch(r.Context(), principal, &models.RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
	})

	if resp.Error != nil {
		status := mcp.ResponseHTTPStatus(resp)
		if status == http.StatusOK {
			status = http.StatusBadRequest
		}
		code := ""
		if resp.Error.Data != nil {
			code = resp.Error.Data.Code
		}
		WriteJSON(w, status, ErrorResponse{Error: resp.Error.Message, Code: code})
		return
	}
	WriteJSON(w, http.StatusOK, resp.Result)
}

// handleMCPResources handles GET /mcp/resources. Auth required.
func (s *Server) handleMCPResources(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	principal, ok := s.resolvePrincipal(r)
	if !ok || principal == nil {
		writeBearerChallenge(w, s.app.Config, "invalid_token", "Invalid token or API key")
		return
	}
	s.dispatchREST(w, r, principal, "resources/list", nil)
}

// handleMCPResourceRead handles GET /mcp/resources/read?uri=. Auth required.
func (s *Server) handleMCPResourceRead(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	principal, ok := s.resolvePrincipal(r)
	if !ok || principal == nil {
		writeBearerChallenge(w, s.app.Config, "invalid_token", "Invalid token or API key")
		return
	}

	uri := r.URL.Query().Get("uri")
	if uri == "" {
		WriteError(w, http.StatusBadRequest, "uri query parameter is required")
		return
	}
	s.dispatchREST(w, r, principal, "resources/read", map[string]string{"uri": uri})
}
