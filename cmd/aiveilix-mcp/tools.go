package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListBucketsTool returns the list_buckets tool definition
func createListBucketsTool() mcp.Tool {
	return mcp.NewTool("list_buckets",
		mcp.WithDescription("List the knowledge buckets the authenticated user can access"),
	)
}

// createGetBucketInfoTool returns the get_bucket_info tool definition
func createGetBucketInfoTool() mcp.Tool {
	return mcp.NewTool("get_bucket_info",
		mcp.WithDescription("Get metadata for a single knowledge bucket"),
		mcp.WithString("bucket_id",
			mcp.Required(),
			mcp.Description("Bucket identifier"),
		),
	)
}

// createListBucketFilesTool returns the list_bucket_files tool definition
func createListBucketFilesTool() mcp.Tool {
	return mcp.NewTool("list_bucket_files",
		mcp.WithDescription("List the files stored in a bucket"),
		mcp.WithString("bucket_id",
			mcp.Required(),
			mcp.Description("Bucket identifier"),
		),
	)
}

// createGetFileContentTool returns the get_file_content tool definition
func createGetFileContentTool() mcp.Tool {
	return mcp.NewTool("get_file_content",
		mcp.WithDescription("Get the extracted text content of a file"),
		mcp.WithString("bucket_id",
			mcp.Required(),
			mcp.Description("Bucket identifier"),
		),
		mcp.WithString("file_id",
			mcp.Required(),
			mcp.Description("File identifier"),
		),
		mcp.WithBoolean("include_raw",
			mcp.Description("Include the unprocessed raw text (default: false)"),
		),
	)
}

// createQueryBucketTool returns the query_bucket tool definition
func createQueryBucketTool() mcp.Tool {
	return mcp.NewTool("query_bucket",
		mcp.WithDescription("Run a semantic search over a bucket's content"),
		mcp.WithString("bucket_id",
			mcp.Required(),
			mcp.Description("Bucket identifier"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of matches (default: 10, max: 100)"),
		),
	)
}

// createChatBucketTool returns the chat_bucket tool definition
func createChatBucketTool() mcp.Tool {
	return mcp.NewTool("chat_bucket",
		mcp.WithDescription("Ask a question answered from a bucket's content"),
		mcp.WithString("bucket_id",
			mcp.Required(),
			mcp.Description("Bucket identifier"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Question or message"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Continue an existing conversation"),
		),
	)
}
