// Package knowledge provides a client for the Knowledge Service internal API.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
)

const (
	DefaultBaseURL   = "http://localhost:9000"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 20 // requests per second
)

// Client implements the KnowledgeClient interface.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	logger       *common.Logger
	limiter      *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Knowledge Service client
func NewClient(serviceToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a Knowledge Service error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("knowledge service error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// do performs a rate-limited request and decodes the JSON response.
// A 404 maps to interfaces.ErrNotFound so callers can branch on it.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceToken != "" {
		req.Header.Set("X-Service-Token", c.serviceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return interfaces.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(data),
			Endpoint:   path,
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ListBuckets returns the buckets owned by the user.
func (c *Client) ListBuckets(ctx context.Context, userID string) ([]*models.Bucket, error) {
	var buckets []*models.Bucket
	path := "/internal/users/" + url.PathEscape(userID) + "/buckets"
	if err := c.do(ctx, http.MethodGet, path, nil, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

// GetBucket fetches one bucket with its ownership metadata.
func (c *Client) GetBucket(ctx context.Context, bucketID string) (*models.Bucket, error) {
	var bucket models.Bucket
	path := "/internal/buckets/" + url.PathEscape(bucketID)
	if err := c.do(ctx, http.MethodGet, path, nil, &bucket); err != nil {
		return nil, err
	}
	return &bucket, nil
}

// ListFiles lists the files in a bucket.
func (c *Client) ListFiles(ctx context.Context, bucketID string) ([]*models.File, error) {
	var files []*models.File
	path := "/internal/buckets/" + url.PathEscape(bucketID) + "/files"
	if err := c.do(ctx, http.MethodGet, path, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetFileContent fetches a file's extracted text, optionally with the raw text.
func (c *Client) GetFileContent(ctx context.Context, bucketID, fileID string, includeRaw bool) (*models.FileContent, error) {
	var content models.FileContent
	path := "/internal/buckets/" + url.PathEscape(bucketID) + "/files/" + url.PathEscape(fileID)
	if includeRaw {
		path += "?include_raw=true"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// QueryBucket runs a semantic query over a bucket.
func (c *Client) QueryBucket(ctx context.Context, bucketID, query string, maxResults int) (*models.QueryResult, error) {
	var result models.QueryResult
	path := "/internal/buckets/" + url.PathEscape(bucketID) + "/query"
	body := map[string]any{
		"query":       query,
		"max_results": maxResults,
	}
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChatBucket runs one chat turn against a bucket.
func (c *Client) ChatBucket(ctx context.Context, bucketID, message, conversationID string) (*models.ChatResult, error) {
	var result models.ChatResult
	path := "/internal/buckets/" + url.PathEscape(bucketID) + "/chat"
	body := map[string]any{
		"message":         message,
		"conversation_id": conversationID,
	}
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Compile-time check
var _ interfaces.KnowledgeClient = (*Client)(nil)
