package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/aiveilix/aiveilix/internal/services/auth"
)

// Query result bounds.
const (
	defaultMaxResults = 10
	maxMaxResults     = 100
)

// toolHandler executes one tool call for an authenticated principal.
type toolHandler func(ctx context.Context, principal *models.Principal, args map[string]any) (*models.ToolResult, *Error)

// toolDefs is the static tool registry. Scopes gate execution, not
// visibility; tools/list shows everything.
func toolDefs() []models.Tool {
	return []models.Tool{
		{
			Name:          "list_buckets",
			Description:   "List the knowledge buckets the authenticated user can access",
			RequiredScope: "read:buckets",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:          "get_bucket_info",
			Description:   "Get metadata for a single knowledge bucket",
			RequiredScope: "read:buckets",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{
						"type":        "string",
						"description": "Bucket identifier",
					},
				},
				"required": []string{"bucket_id"},
			},
		},
		{
			Name:          "list_bucket_files",
			Description:   "List the files stored in a bucket",
			RequiredScope: "read:files",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{
						"type":        "string",
						"description": "Bucket identifier",
					},
				},
				"required": []string{"bucket_id"},
			},
		},
		{
			Name:          "get_file_content",
			Description:   "Get the extracted text content of a file",
			RequiredScope: "read:files",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{
						"type":        "string",
						"description": "Bucket identifier",
					},
					"file_id": map[string]any{
						"type":        "string",
						"description": "File identifier",
					},
					"include_raw": map[string]any{
						"type":        "boolean",
						"description": "Include the unprocessed raw text",
						"default":     false,
					},
				},
				"required": []string{"bucket_id", "file_id"},
			},
		},
		{
			Name:          "query_bucket",
			Description:   "Run a semantic search over a bucket's content",
			RequiredScope: "query",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{
						"type":        "string",
						"description": "Bucket identifier",
					},
					"query": map[string]any{
						"type":        "string",
						"description": "Search query",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of matches (1-100)",
						"default":     defaultMaxResults,
						"minimum":     1,
						"maximum":     maxMaxResults,
					},
				},
				"required": []string{"bucket_id", "query"},
			},
		},
		{
			Name:          "chat_bucket",
			Description:   "Ask a question answered from a bucket's content",
			RequiredScope: "chat",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{
						"type":        "string",
						"description": "Bucket identifier",
					},
					"message": map[string]any{
						"type":        "string",
						"description": "Question or message",
					},
					"conversation_id": map[string]any{
						"type":        "string",
						"description": "Continue an existing conversation",
					},
				},
				"required": []string{"bucket_id", "message"},
			},
		},
	}
}

func (d *Dispatcher) toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		"list_buckets":      d.handleListBuckets,
		"get_bucket_info":   d.handleGetBucketInfo,
		"list_bucket_files": d.handleListBucketFiles,
		"get_file_content":  d.handleGetFileContent,
		"query_bucket":      d.handleQueryBucket,
		"chat_bucket":       d.handleChatBucket,
	}
}

func (d *Dispatcher) handleListBuckets(ctx context.Context, principal *models.Principal, _ map[string]any) (*models.ToolResult, *Error) {
	buckets, err := d.knowledge.ListBuckets(ctx, principal.UserID)
	if err != nil {
		return nil, mapCallError(err, CodeBucketListError, "failed to list buckets")
	}
	buckets = d.bridge.FilterBuckets(principal, buckets)
	return jsonToolResult(map[string]any{"buckets": buckets, "count": len(buckets)})
}

func (d *Dispatcher) handleGetBucketInfo(ctx context.Context, principal *models.Principal, args map[string]any) (*models.ToolResult, *Error) {
	bucketID, rerr := requireString(args, "bucket_id")
	if rerr != nil {
		return nil, rerr
	}
	bucket, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID)
	if err != nil {
		return nil, mapCallError(err, CodeBucketInfoError, "failed to get bucket info")
	}
	return jsonToolResult(bucket)
}

func (d *Dispatcher) handleListBucketFiles(ctx context.Context, principal *models.Principal, args map[string]any) (*models.ToolResult, *Error) {
	bucketID, rerr := requireString(args, "bucket_id")
	if rerr != nil {
		return nil, rerr
	}
	if _, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID); err != nil {
		return nil, mapCallError(err, CodeFileListError, "failed to list files")
	}
	files, err := d.knowledge.ListFiles(ctx, bucketID)
	if err != nil {
		return nil, mapCallError(err, CodeFileListError, "failed to list files")
	}
	return jsonToolResult(map[string]any{"bucket_id": bucketID, "files": files, "count": len(files)})
}

func (d *Dispatcher) handleGetFileContent(ctx context.Context, principal *models.Principal, args map[string]any) (*models.ToolResult, *Error) {
	bucketID, rerr := requireString(args, "bucket_id")
	if rerr != nil {
		return nil, rerr
	}
	fileID, rerr := requireString(args, "file_id")
	if rerr != nil {
		return nil, rerr
	}
	includeRaw := optionalBool(args, "include_raw")

	if _, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID); err != nil {
		return nil, mapCallError(err, CodeFileContentError, "failed to get file content")
	}
	content, err := d.knowledge.GetFileContent(ctx, bucketID, fileID, includeRaw)
	if err != nil {
		return nil, mapCallError(err, CodeFileContentError, "failed to get file content")
	}
	return jsonToolResult(content)
}

func (d *Dispatcher) handleQueryBucket(ctx context.Context, principal *models.Principal, args map[string]any) (*models.ToolResult, *Error) {
	bucketID, rerr := requireString(args, "bucket_id")
	if rerr != nil {
		return nil, rerr
	}
	query, rerr := requireString(args, "query")
	if rerr != nil {
		return nil, rerr
	}

	maxResults := optionalInt(args, "max_results", defaultMaxResults)
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}

	if _, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID); err != nil {
		return nil, mapCallError(err, CodeQueryError, "query failed")
	}
	result, err := d.knowledge.QueryBucket(ctx, bucketID, query, maxResults)
	if err != nil {
		return nil, mapCallError(err, CodeQueryError, "query failed")
	}
	return jsonToolResult(result)
}

func (d *Dispatcher) handleChatBucket(ctx context.Context, principal *models.Principal, args map[string]any) (*models.ToolResult, *Error) {
	bucketID, rerr := requireString(args, "bucket_id")
	if rerr != nil {
		return nil, rerr
	}
	message, rerr := requireString(args, "message")
	if rerr != nil {
		return nil, rerr
	}
	conversationID := optionalString(args, "conversation_id")

	if _, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID); err != nil {
		return nil, mapCallError(err, CodeChatError, "chat failed")
	}
	result, err := d.knowledge.ChatBucket(ctx, bucketID, message, conversationID)
	if err != nil {
		return nil, mapCallError(err, CodeChatError, "chat failed")
	}
	return jsonToolResult(result)
}

// mapCallError translates collaborator errors into the closed union.
// Upstream error details never reach the wire.
func mapCallError(err error, fallbackCode, fallbackMessage string) *Error {
	switch {
	case errors.Is(err, auth.ErrBucketNotFound):
		return domainError(CodeBucketNotFound, "Bucket not found")
	case errors.Is(err, auth.ErrAccessDenied):
		return domainError(CodeAccessDenied, "Access denied")
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutError("Tool execution timed out")
	case errors.Is(err, context.Canceled):
		return timeoutError("Tool execution canceled")
	default:
		return domainError(fallbackCode, fallbackMessage)
	}
}

func jsonToolResult(v any) (*models.ToolResult, *Error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, internalError("failed to encode tool result")
	}
	return models.TextToolResult(string(data)), nil
}

// --- argument helpers ---

func requireString(args map[string]any, name string) (string, *Error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", domainError(CodeMissingParameter, "Missing required parameter: "+name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", domainError(CodeInvalidParameter, "Parameter must be a non-empty string: "+name)
	}
	return s, nil
}

func optionalString(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func optionalBool(args map[string]any, name string) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return false
}

func optionalInt(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
