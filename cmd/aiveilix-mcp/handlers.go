package main

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aiveilix/aiveilix/internal/app"
	"github.com/aiveilix/aiveilix/internal/models"
)

// callTool routes a stdio tool invocation through the protocol dispatcher
// so scope checks, timeouts and error mapping match the HTTP transports.
func callTool(a *app.App, principal *models.Principal, name string, args map[string]interface{}) *mcp.CallToolResult {
	params, err := json.Marshal(map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return errorResult("failed to encode tool arguments")
	}

	resp := a.Dispatcher.Dispatch(context.Background(), principal, &models.RPCRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  params,
	})

	if resp.Error != nil {
		return errorResult(resp.Error.Message)
	}

	result, ok := resp.Result.(*models.ToolResult)
	if !ok || len(result.Content) == 0 {
		return errorResult("tool returned no content")
	}
	return textResult(result.Content[0].Text)
}

// handleListBuckets implements the list_buckets tool
func handleListBuckets(a *app.App, principal *models.Principal) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return callTool(a, principal, "list_buckets", nil), nil
	}
}

// handleGetBucketInfo implements the get_bucket_info tool
func handleGetBucketInfo(a *app.App, principal *models.Principal) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bucketID, err := request.RequireString("bucket_id")
		if err != nil || bucketID == "" {
			return errorResult("Error: bucket_id parameter is required"), nil
		}
		return callTool(a, principal, "get_bucket_info", map[string]interface{}{
			"bucket_id": bucketID,
		}), nil
	}
}

// handleListBucketFiles implements the list_bucket_files tool
func handleListBucketFiles(a *app.App, principal *models.Principal) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bucketID, err := request.RequireString("bucket_id")
		if err != nil || bucketID == "" {
			return errorResult("Error: bucket_id parameter is required"), nil
		}
		return callTool(a, principal, "list_bucket_files", map[string]interface{}{
			"bucket_id": bucketID,
		}), nil
	}
}

// handleGetFileContent implements the get_file_content tool
func handleGetFileContent(a *app.App, principal *models.Principal) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bucketID, err := request.RequireString("bucket_id")
		if err != nil || bucketID == "" {
			return errorResult("Error: bucket_id parameter is required"), nil
		}
		fileID, err := request.RequireString("file_id")
		if err != nil || fileID == "" {
			return errorResult("Error: file_id parameter is required"), nil
		}
		return callTool(a, principal, "get_file_content", map[string]interface{}{
			"bucket_id":   bucketID,
			"file_id":     fileID,
			"include_raw": request.GetBool("include_raw", false),
		}), nil
	}
}

// handleQueryBucket implements the query_bucket tool
func handleQueryBucket(a *app.App, principal *models.Principal) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bucketID, err := request.RequireString("bucket_id")
		if err != nil || bucketID == "" {
			return errorResult("Error: bucket_id parameter is required"), nil
		}
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return errorResult("Error: query parameter is required"), nil
		}
		return callTool(a, principal, "query_bucket", map[string]interface{}{
			"bucket_id":   bucketID,
			"query":       query,
			"max_results": request.GetInt("max_results", 10),
		}), nil
	}
}

// handleChatBucket implements the chat_bucket tool
func handleChatBucket(a *app.App, principal *models.Principal) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bucketID, err := request.RequireString("bucket_id")
		if err != nil || bucketID == "" {
			return errorResult("Error: bucket_id parameter is required"), nil
		}
		message, err := request.RequireString("message")
		if err != nil || message == "" {
			return errorResult("Error: message parameter is required"), nil
		}
		args := map[string]interface{}{
			"bucket_id": bucketID,
			"message":   message,
		}
		if conversationID := request.GetString("conversation_id", ""); conversationID != "" {
			args["conversation_id"] = conversationID
		}
		return callTool(a, principal, "chat_bucket", args), nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
