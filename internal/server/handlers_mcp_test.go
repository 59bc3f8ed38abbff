package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiveilix/aiveilix/internal/mcp"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/aiveilix/aiveilix/internal/services/oauth"
)

// seedAPIKey stores an active API key and returns its plaintext.
func seedAPIKey(t *testing.T, env *testEnv, userID string, scopes []string) string {
	t.Helper()
	key := models.APIKeyPrefix + "test-key-" + userID
	require.NoError(t, env.keys.SaveKey(context.Background(), &models.APIKey{
		KeyID:   "key-" + userID,
		KeyHash: oauth.HashCredential(key),
		UserID:  userID,
		Name:    "test key",
		Scopes:  scopes,
		Active:  true,
	}))
	return key
}

func rpcPost(env *testEnv, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp/protocol", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return env.do(req)
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) *models.RPCResponse {
	t.Helper()
	var resp models.RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestMCPProtocolAnonymousDiscovery(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := rpcPost(env, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeRPC(t, rec)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, models.MCPProtocolVersion, result["protocolVersion"])
}

func TestMCPProtocolAnonymousPingRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := rpcPost(env, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "resource_metadata=")

	resp := decodeRPC(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCDomainError, resp.Error.Code)
	assert.Equal(t, mcp.CodeAuthRequired, resp.Error.Data.Code)
}

func TestMCPProtocolInvalidCredential(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := rpcPost(env, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, "avx_at_garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	resp := decodeRPC(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeAuthRequired, resp.Error.Data.Code)
}

func TestMCPProtocolParseError(t *testing.T) {
	env := newTestEnv(t, nil)

	// Parse errors ride on HTTP 200 like any other JSON-RPC error
	rec := rpcPost(env, `{not json`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":null`)

	resp := decodeRPC(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCParseError, resp.Error.Code)
}

func TestMCPProtocolToolCall(t *testing.T) {
	env := newTestEnv(t, nil)
	key := seedAPIKey(t, env, "user-1", []string{"full"})
	env.knowledge.addBucket(&models.Bucket{ID: "b1", OwnerUserID: "user-1", Name: "Docs"})

	rec := rpcPost(env, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tools/call",
		"params": {"name": "list_buckets"}
	}`, key)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeRPC(t, rec)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	content := result["content"].([]interface{})
	require.Len(t, content, 1)
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, `"b1"`)
}

func TestMCPProtocolScopeDenied(t *testing.T) {
	env := newTestEnv(t, nil)
	key := seedAPIKey(t, env, "user-1", []string{"read"})
	env.knowledge.addBucket(&models.Bucket{ID: "b1", OwnerUserID: "user-1"})

	rec := rpcPost(env, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tools/call",
		"params": {"name": "chat_bucket", "arguments": {"bucket_id": "b1", "message": "hi"}}
	}`, key)

	// Domain errors stay on HTTP 200
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeRPC(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeMissingScope, resp.Error.Data.Code)
}

func sseRequest(env *testEnv, bearer string, timeout time.Duration) *httptest.ResponseRecorder {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/mcp/protocol/sse", nil).WithContext(ctx)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return env.do(req)
}

func TestMCPSSEAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)

	// Anonymous streams get the discovery events and close immediately
	rec := sseRequest(env, "", time.Second)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: capabilities")
	assert.Contains(t, body, models.MCPProtocolVersion)
	assert.NotContains(t, body, "event: ping")
}

func TestMCPSSEInvalidCredential(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := sseRequest(env, "avx_sk_garbage", time.Second)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, mcp.CodeAuthRequired)
	assert.NotContains(t, body, "event: connected")
}

func TestMCPSSEAuthenticatedStaysOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	key := seedAPIKey(t, env, "user-1", []string{"full"})

	// The handler returns only when the request context ends
	start := time.Now()
	rec := sseRequest(env, key, 100*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	body := rec.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: capabilities")
}

func TestMCPResourcesRequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/mcp/resources", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	key := seedAPIKey(t, env, "user-1", []string{"full"})
	env.knowledge.addBucket(&models.Bucket{ID: "b1", OwnerUserID: "user-1", Name: "Docs"})

	req := httptest.NewRequest(http.MethodGet, "/mcp/resources", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Resources []models.Resource `json:"resources"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Resources, 2)
	assert.Equal(t, "aiveilix://buckets", body.Resources[0].URI)
	assert.Equal(t, "aiveilix://buckets/b1", body.Resources[1].URI)
}

func TestMCPResourceRead(t *testing.T) {
	env := newTestEnv(t, nil)
	key := seedAPIKey(t, env, "user-1", []string{"full"})
	env.knowledge.addBucket(&models.Bucket{ID: "b1", OwnerUserID: "user-1", Name: "Docs"})

	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/mcp/resources/read"+query, nil)
		req.Header.Set("Authorization", "Bearer "+key)
		return env.do(req)
	}

	rec := get("?uri=aiveilix%3A%2F%2Fbuckets%2Fb1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Contents []models.ResourceContent `json:"contents"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Contents, 1)
	assert.Contains(t, body.Contents[0].Text, "# Docs")

	rec = get("")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Domain failures map to 400 on the REST surface
	rec = get("?uri=aiveilix%3A%2F%2Fbuckets%2Fmissing")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, mcp.CodeBucketNotFound, errResp.Code)
}
