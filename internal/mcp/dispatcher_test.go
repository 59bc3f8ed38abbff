package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/aiveilix/aiveilix/internal/services/auth"
)

// fakeKnowledge serves canned data and records query parameters.
type fakeKnowledge struct {
	buckets map[string]*models.Bucket
	files   map[string][]*models.File

	lastMaxResults int
	queryErr       error
}

func newFakeKnowledge() *fakeKnowledge {
	return &fakeKnowledge{
		buckets: make(map[string]*models.Bucket),
		files:   make(map[string][]*models.File),
	}
}

func (f *fakeKnowledge) ListBuckets(_ context.Context, userID string) ([]*models.Bucket, error) {
	var out []*models.Bucket
	for _, b := range f.buckets {
		if b.OwnerUserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeKnowledge) GetBucket(_ context.Context, bucketID string) (*models.Bucket, error) {
	b, ok := f.buckets[bucketID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return b, nil
}

func (f *fakeKnowledge) ListFiles(_ context.Context, bucketID string) ([]*models.File, error) {
	return f.files[bucketID], nil
}

func (f *fakeKnowledge) GetFileContent(_ context.Context, bucketID, fileID string, includeRaw bool) (*models.FileContent, error) {
	for _, file := range f.files[bucketID] {
		if file.ID == fileID {
			content := &models.FileContent{File: file, Text: "extracted text"}
			if includeRaw {
				content.RawText = "raw text"
			}
			return content, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeKnowledge) QueryBucket(_ context.Context, bucketID, query string, maxResults int) (*models.QueryResult, error) {
	f.lastMaxResults = maxResults
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &models.QueryResult{
		BucketID: bucketID,
		Query:    query,
		Matches: []models.QueryMatch{
			{FileID: "f1", FileName: "notes.md", Snippet: "a match", Relevance: 0.9},
		},
	}, nil
}

func (f *fakeKnowledge) ChatBucket(_ context.Context, bucketID, message, conversationID string) (*models.ChatResult, error) {
	return &models.ChatResult{
		BucketID:       bucketID,
		ConversationID: "conv-1",
		Message:        message,
		Answer:         "an answer",
	}, nil
}

var _ interfaces.KnowledgeClient = (*fakeKnowledge)(nil)

// fakeBridge enforces ownership against the fake knowledge data.
type fakeBridge struct {
	knowledge *fakeKnowledge
}

func (b *fakeBridge) Resolve(_ context.Context, _ string) (*models.Principal, error) {
	return nil, auth.ErrInvalidCredential
}

func (b *fakeBridge) CheckScope(principal *models.Principal, required string) error {
	if principal.HasScope(required) {
		return nil
	}
	return &auth.MissingScopeError{Scope: required}
}

func (b *fakeBridge) CheckBucketAccess(ctx context.Context, principal *models.Principal, bucketID string) (*models.Bucket, error) {
	bucket, ok := b.knowledge.buckets[bucketID]
	if !ok {
		return nil, auth.ErrBucketNotFound
	}
	if bucket.OwnerUserID != principal.UserID {
		return nil, auth.ErrAccessDenied
	}
	return bucket, nil
}

func (b *fakeBridge) FilterBuckets(_ *models.Principal, buckets []*models.Bucket) []*models.Bucket {
	return buckets
}

var _ interfaces.CredentialBridge = (*fakeBridge)(nil)

func newTestDispatcher() (*Dispatcher, *fakeKnowledge) {
	knowledge := newFakeKnowledge()
	bridge := &fakeBridge{knowledge: knowledge}
	return NewDispatcher(bridge, knowledge, common.NewSilentLogger()), knowledge
}

func fullPrincipal() *models.Principal {
	return &models.Principal{
		UserID:   "user-1",
		AuthType: models.AuthTypeOAuth,
		Scopes:   []string{"full"},
	}
}

func rpcRequest(method string, params any) *models.RPCRequest {
	req := &models.RPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  method,
	}
	if params != nil {
		data, _ := json.Marshal(params)
		req.Params = data
	}
	return req
}

func toolCall(name string, args map[string]any) *models.RPCRequest {
	return rpcRequest("tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
}

func TestDispatchInitialize(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), nil, rpcRequest("initialize", nil))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, models.MCPProtocolVersion, result["protocolVersion"])
	assert.Equal(t, 200, ResponseHTTPStatus(resp))
}

func TestDispatchAnonymousDiscovery(t *testing.T) {
	d, _ := newTestDispatcher()
	ctx := context.Background()

	for _, method := range []string{"initialize", "tools/list", "resources/list", "prompts/list"} {
		resp := d.Dispatch(ctx, nil, rpcRequest(method, nil))
		assert.Nil(t, resp.Error, method)
	}

	resp := d.Dispatch(ctx, nil, rpcRequest("tools/list", nil))
	result := resp.Result.(map[string]any)
	tools := result["tools"].([]models.Tool)
	assert.Len(t, tools, 6)

	// Anonymous resources/list only shows the static entry points
	resp = d.Dispatch(ctx, nil, rpcRequest("resources/list", nil))
	resources := resp.Result.(map[string]any)["resources"].([]models.Resource)
	require.Len(t, resources, 1)
	assert.Equal(t, "aiveilix://buckets", resources[0].URI)
}

func TestDispatchAnonymousPingRequiresAuth(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), nil, rpcRequest("ping", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCDomainError, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, CodeAuthRequired, resp.Error.Data.Code)
	assert.Equal(t, 401, ResponseHTTPStatus(resp))
}

func TestDispatchAuthenticatedPing(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), fullPrincipal(), rpcRequest("ping", nil))
	assert.Nil(t, resp.Error)
}

func TestDispatchInvalidRequest(t *testing.T) {
	d, _ := newTestDispatcher()
	ctx := context.Background()

	resp := d.Dispatch(ctx, nil, &models.RPCRequest{JSONRPC: "1.0", Method: "ping"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCInvalidRequest, resp.Error.Code)

	resp = d.Dispatch(ctx, nil, &models.RPCRequest{JSONRPC: "2.0"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCInvalidRequest, resp.Error.Code)
}

func TestDispatchMethodNotFound(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), fullPrincipal(), rpcRequest("tools/unknown", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCMethodNotFound, resp.Error.Code)
	assert.Equal(t, 200, ResponseHTTPStatus(resp))
}

func TestParseRequest(t *testing.T) {
	req, derr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"ping","id":7}`))
	require.Nil(t, derr)
	assert.Equal(t, "ping", req.Method)

	_, derr = ParseRequest([]byte(`{not json`))
	require.NotNil(t, derr)
	resp := ErrorResponse(nil, derr)
	assert.Equal(t, models.RPCParseError, resp.Error.Code)

	// An undeterminable request id serializes as null, never omitted
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":null`)
}

func TestToolCallListBuckets(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1", Name: "Docs", FileCount: 2}

	resp := d.Dispatch(context.Background(), fullPrincipal(), toolCall("list_buckets", nil))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*models.ToolResult)
	require.True(t, ok)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, `"b1"`)
	assert.Contains(t, result.Content[0].Text, `"count": 1`)
}

func TestToolCallScopeDenied(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1"}

	readOnly := &models.Principal{
		UserID:   "user-1",
		AuthType: models.AuthTypeAPIKey,
		Scopes:   []string{"read:buckets"},
	}

	resp := d.Dispatch(context.Background(), readOnly, toolCall("query_bucket", map[string]any{
		"bucket_id": "b1",
		"query":     "anything",
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCDomainError, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, CodeMissingScope, resp.Error.Data.Code)
}

func TestToolCallUnknownTool(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), fullPrincipal(), toolCall("drop_tables", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCDomainError, resp.Error.Code)
	assert.Equal(t, CodeUnknownTool, resp.Error.Data.Code)
}

func TestToolCallMissingName(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), fullPrincipal(), rpcRequest("tools/call", map[string]any{}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMissingParameter, resp.Error.Data.Code)
}

func TestToolCallMissingParameter(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Dispatch(context.Background(), fullPrincipal(), toolCall("get_bucket_info", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMissingParameter, resp.Error.Data.Code)
	assert.Contains(t, resp.Error.Message, "bucket_id")
}

func TestToolCallBucketErrors(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["theirs"] = &models.Bucket{ID: "theirs", OwnerUserID: "user-2"}
	ctx := context.Background()

	resp := d.Dispatch(ctx, fullPrincipal(), toolCall("get_bucket_info", map[string]any{
		"bucket_id": "missing",
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeBucketNotFound, resp.Error.Data.Code)
	assert.Equal(t, 200, ResponseHTTPStatus(resp))

	resp = d.Dispatch(ctx, fullPrincipal(), toolCall("get_bucket_info", map[string]any{
		"bucket_id": "theirs",
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAccessDenied, resp.Error.Data.Code)
}

func TestQueryBucketClampsMaxResults(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1"}
	ctx := context.Background()

	call := func(maxResults any) {
		args := map[string]any{"bucket_id": "b1", "query": "q"}
		if maxResults != nil {
			args["max_results"] = maxResults
		}
		resp := d.Dispatch(ctx, fullPrincipal(), toolCall("query_bucket", args))
		require.Nil(t, resp.Error)
	}

	call(nil)
	assert.Equal(t, 10, knowledge.lastMaxResults)

	call(500)
	assert.Equal(t, 100, knowledge.lastMaxResults)

	call(0)
	assert.Equal(t, 1, knowledge.lastMaxResults)
}

func TestGetFileContentIncludeRaw(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1"}
	knowledge.files["b1"] = []*models.File{{ID: "f1", Name: "notes.md"}}

	resp := d.Dispatch(context.Background(), fullPrincipal(), toolCall("get_file_content", map[string]any{
		"bucket_id":   "b1",
		"file_id":     "f1",
		"include_raw": true,
	}))
	require.Nil(t, resp.Error)
	result := resp.Result.(*models.ToolResult)
	assert.Contains(t, result.Content[0].Text, "raw text")
}

func TestResourceRead(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1", Name: "Docs", FileCount: 1}
	knowledge.files["b1"] = []*models.File{{ID: "f1", Name: "notes.md", SizeBytes: 42}}
	ctx := context.Background()

	read := func(uri string) *models.RPCResponse {
		return d.Dispatch(ctx, fullPrincipal(), rpcRequest("resources/read", map[string]any{"uri": uri}))
	}

	contents := func(resp *models.RPCResponse) string {
		t.Helper()
		require.Nil(t, resp.Error)
		result := resp.Result.(map[string]any)
		list := result["contents"].([]models.ResourceContent)
		require.Len(t, list, 1)
		assert.Equal(t, "text/markdown", list[0].MimeType)
		return list[0].Text
	}

	assert.Contains(t, contents(read("aiveilix://buckets")), "Knowledge Buckets")
	assert.Contains(t, contents(read("aiveilix://buckets/b1")), "# Docs")
	assert.Contains(t, contents(read("aiveilix://buckets/b1/files")), "notes.md")
	assert.Contains(t, contents(read("aiveilix://buckets/b1/search?q=hello")), "Search results")

	resp := read("aiveilix://buckets/b1/search")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMissingParameter, resp.Error.Data.Code)

	resp = read("https://example.com/buckets")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidURI, resp.Error.Data.Code)

	resp = read("aiveilix://buckets/b1/files/extra")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Data.Code)
}

func TestResourceListAuthenticated(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1", Name: "Docs"}

	resp := d.Dispatch(context.Background(), fullPrincipal(), rpcRequest("resources/list", nil))
	require.Nil(t, resp.Error)
	resources := resp.Result.(map[string]any)["resources"].([]models.Resource)
	require.Len(t, resources, 2)
	assert.Equal(t, "aiveilix://buckets/b1", resources[1].URI)
}

func TestErrorWireMapping(t *testing.T) {
	cases := []struct {
		derr       *Error
		code       int
		dataCode   string
		httpStatus int
	}{
		{parseError("bad"), models.RPCParseError, "", 200},
		{invalidRequest("bad"), models.RPCInvalidRequest, "", 200},
		{methodNotFound("x"), models.RPCMethodNotFound, "", 200},
		{domainError(CodeBucketNotFound, "gone"), models.RPCDomainError, CodeBucketNotFound, 200},
		{authRequired(), models.RPCDomainError, CodeAuthRequired, 401},
		{timeoutError("slow"), models.RPCInternalError, CodeTimeout, 504},
		{internalError("boom"), models.RPCInternalError, "", 200},
	}

	for _, tc := range cases {
		resp := ErrorResponse(nil, tc.derr)
		assert.Equal(t, tc.code, resp.Error.Code)
		if tc.dataCode == "" {
			assert.Nil(t, resp.Error.Data)
		} else {
			require.NotNil(t, resp.Error.Data)
			assert.Equal(t, tc.dataCode, resp.Error.Data.Code)
		}
		assert.Equal(t, tc.httpStatus, ResponseHTTPStatus(resp))
	}
}

func TestToolCallTimeout(t *testing.T) {
	d, knowledge := newTestDispatcher()
	knowledge.buckets["b1"] = &models.Bucket{ID: "b1", OwnerUserID: "user-1"}
	knowledge.queryErr = context.DeadlineExceeded

	resp := d.Dispatch(context.Background(), fullPrincipal(), toolCall("query_bucket", map[string]any{
		"bucket_id": "b1",
		"query":     "slow",
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.RPCInternalError, resp.Error.Code)
	assert.Equal(t, CodeTimeout, resp.Error.Data.Code)
	assert.Equal(t, 504, ResponseHTTPStatus(resp))

	marker := strings.ToLower(resp.Error.Message)
	assert.Contains(t, marker, "timed out")
}
