package interfaces

import (
	"context"

	"github.com/aiveilix/aiveilix/internal/models"
)

// KnowledgeClient talks to the external Knowledge Service. All calls honor
// the supplied context so dispatcher deadlines cancel in-flight work.
type KnowledgeClient interface {
	ListBuckets(ctx context.Context, userID string) ([]*models.Bucket, error)
	GetBucket(ctx context.Context, bucketID string) (*models.Bucket, error)
	ListFiles(ctx context.Context, bucketID string) ([]*models.File, error)
	GetFileContent(ctx context.Context, bucketID, fileID string, includeRaw bool) (*models.FileContent, error)
	QueryBucket(ctx context.Context, bucketID, query string, maxResults int) (*models.QueryResult, error)
	ChatBucket(ctx context.Context, bucketID, message, conversationID string) (*models.ChatResult, error)
}
