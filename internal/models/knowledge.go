package models

import "time"

// Bucket is a knowledge bucket as reported by the Knowledge Service.
type Bucket struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FileCount   int       `json:"file_count"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// File is a file stored in a bucket.
type File struct {
	ID        string    `json:"id"`
	BucketID  string    `json:"bucket_id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status,omitempty"` // processing pipeline state
	CreatedAt time.Time `json:"created_at"`
}

// FileContent is the extracted (and optionally raw) content of a file.
type FileContent struct {
	File    *File  `json:"file"`
	Text    string `json:"text"`
	RawText string `json:"raw_text,omitempty"`
}

// QueryMatch is one semantic search hit.
type QueryMatch struct {
	FileID    string  `json:"file_id"`
	FileName  string  `json:"file_name"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// QueryResult is the result of a semantic query over a bucket.
type QueryResult struct {
	BucketID string       `json:"bucket_id"`
	Query    string       `json:"query"`
	Matches  []QueryMatch `json:"matches"`
}

// ChatResult is the result of a bucket chat turn.
type ChatResult struct {
	BucketID       string `json:"bucket_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Answer         string `json:"answer"`
}
