package mcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aiveilix/aiveilix/internal/models"
)

// URIScheme is the resource URI scheme exposed by the gateway.
const URIScheme = "aiveilix"

const markdownMime = "text/markdown"

// staticResources are the fixed entry points always present in
// resources/list, including for unauthenticated discovery.
func staticResources() []models.Resource {
	return []models.Resource{
		{
			URI:         "aiveilix://buckets",
			Name:        "Knowledge Buckets",
			Description: "All knowledge buckets available to the authenticated user",
			MimeType:    markdownMime,
		},
	}
}

// listResources returns the static resources plus one entry per bucket the
// principal can see.
func (d *Dispatcher) listResources(ctx context.Context, principal *models.Principal) ([]models.Resource, *Error) {
	resources := staticResources()
	if principal == nil {
		return resources, nil
	}

	buckets, err := d.knowledge.ListBuckets(ctx, principal.UserID)
	if err != nil {
		return nil, mapCallError(err, CodeBucketListError, "failed to list buckets")
	}
	for _, bucket := range d.bridge.FilterBuckets(principal, buckets) {
		resources = append(resources, models.Resource{
			URI:         "aiveilix://buckets/" + bucket.ID,
			Name:        bucket.Name,
			Description: bucket.Description,
			MimeType:    markdownMime,
		})
	}
	return resources, nil
}

// readResource resolves one aiveilix:// URI to markdown contents.
// Supported forms: buckets, buckets/{id}, buckets/{id}/files,
// buckets/{id}/search?q={query}.
func (d *Dispatcher) readResource(ctx context.Context, principal *models.Principal, rawURI string) ([]models.ResourceContent, *Error) {
	parsed, err := url.Parse(rawURI)
	if err != nil || parsed.Scheme != URIScheme || parsed.Host != "buckets" {
		return nil, domainError(CodeInvalidURI, "Invalid resource URI: "+rawURI)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	switch {
	case len(parts) == 0:
		return d.readBucketList(ctx, principal, rawURI)

	case len(parts) == 1:
		return d.readBucket(ctx, principal, rawURI, parts[0])

	case len(parts) == 2 && parts[1] == "files":
		return d.readBucketFiles(ctx, principal, rawURI, parts[0])

	case len(parts) == 2 && parts[1] == "search":
		query := parsed.Query().Get("q")
		if query == "" {
			return nil, domainError(CodeMissingParameter, "Missing search query parameter: q")
		}
		return d.readBucketSearch(ctx, principal, rawURI, parts[0], query)

	default:
		return nil, domainError(CodeNotFound, "Resource not found: "+rawURI)
	}
}

func (d *Dispatcher) readBucketList(ctx context.Context, principal *models.Principal, uri string) ([]models.ResourceContent, *Error) {
	buckets, err := d.knowledge.ListBuckets(ctx, principal.UserID)
	if err != nil {
		return nil, mapCallError(err, CodeBucketListError, "failed to list buckets")
	}
	buckets = d.bridge.FilterBuckets(principal, buckets)

	var sb strings.Builder
	sb.WriteString("# Knowledge Buckets\n\n")
	if len(buckets) == 0 {
		sb.WriteString("No buckets available.\n")
	}
	for _, bucket := range buckets {
		fmt.Fprintf(&sb, "- **%s** (`%s`) — %d files\n", bucket.Name, bucket.ID, bucket.FileCount)
	}
	return markdownContent(uri, sb.String()), nil
}

func (d *Dispatcher) readBucket(ctx context.Context, principal *models.Principal, uri, bucketID string) ([]models.ResourceContent, *Error) {
	bucket, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID)
	if err != nil {
		return nil, mapCallError(err, CodeBucketInfoError, "failed to read bucket")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", bucket.Name)
	if bucket.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", bucket.Description)
	}
	fmt.Fprintf(&sb, "- ID: `%s`\n", bucket.ID)
	fmt.Fprintf(&sb, "- Files: %d\n", bucket.FileCount)
	fmt.Fprintf(&sb, "- Size: %d bytes\n", bucket.SizeBytes)
	return markdownContent(uri, sb.String()), nil
}

func (d *Dispatcher) readBucketFiles(ctx context.Context, principal *models.Principal, uri, bucketID string) ([]models.ResourceContent, *Error) {
	bucket, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID)
	if err != nil {
		return nil, mapCallError(err, CodeFileListError, "failed to read bucket files")
	}
	files, err := d.knowledge.ListFiles(ctx, bucketID)
	if err != nil {
		return nil, mapCallError(err, CodeFileListError, "failed to read bucket files")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Files in %s\n\n", bucket.Name)
	if len(files) == 0 {
		sb.WriteString("No files in this bucket.\n")
	}
	for _, file := range files {
		fmt.Fprintf(&sb, "- **%s** (`%s`) — %d bytes\n", file.Name, file.ID, file.SizeBytes)
	}
	return markdownContent(uri, sb.String()), nil
}

func (d *Dispatcher) readBucketSearch(ctx context.Context, principal *models.Principal, uri, bucketID, query string) ([]models.ResourceContent, *Error) {
	bucket, err := d.bridge.CheckBucketAccess(ctx, principal, bucketID)
	if err != nil {
		return nil, mapCallError(err, CodeQueryError, "search failed")
	}
	result, err := d.knowledge.QueryBucket(ctx, bucketID, query, defaultMaxResults)
	if err != nil {
		return nil, mapCallError(err, CodeQueryError, "search failed")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Search results in %s\n\n", bucket.Name)
	fmt.Fprintf(&sb, "Query: `%s`\n\n", query)
	if len(result.Matches) == 0 {
		sb.WriteString("No matches.\n")
	}
	for _, match := range result.Matches {
		fmt.Fprintf(&sb, "## %s (relevance %.2f)\n\n%s\n\n", match.FileName, match.Relevance, match.Snippet)
	}
	return markdownContent(uri, sb.String()), nil
}

func markdownContent(uri, text string) []models.ResourceContent {
	return []models.ResourceContent{{
		URI:      uri,
		MimeType: markdownMime,
		Text:     text,
	}}
}
