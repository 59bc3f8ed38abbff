package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// keyRow is the DB-level representation of an API key.
type keyRow struct {
	KeyID          string    `json:"key_id"`
	KeyHash        string    `json:"key_hash"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Scopes         []string  `json:"scopes"`
	AllowedBuckets []string  `json:"allowed_buckets"`
	Active         bool      `json:"active"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
}

// APIKeyStore implements interfaces.APIKeyStore using SurrealDB.
type APIKeyStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewAPIKeyStore creates a new APIKeyStore.
func NewAPIKeyStore(db *surrealdb.DB, logger *common.Logger) *APIKeyStore {
	return &APIKeyStore{db: db, logger: logger}
}

func (s *APIKeyStore) SaveKey(ctx context.Context, key *models.APIKey) error {
	sql := `UPSERT $rid SET
		key_id = $key_id, key_hash = $key_hash, user_id = $user_id,
		name = $name, scopes = $scopes, allowed_buckets = $allowed_buckets,
		active = $active, expires_at = $expires_at, created_at = $created_at,
		last_used_at = $last_used_at`
	vars := map[string]any{
		"rid":             surrealmodels.NewRecordID("api_key", key.KeyID),
		"key_id":          key.KeyID,
		"key_hash":        key.KeyHash,
		"user_id":         key.UserID,
		"name":            key.Name,
		"scopes":          key.Scopes,
		"allowed_buckets": key.AllowedBuckets,
		"active":          key.Active,
		"expires_at":      key.ExpiresAt,
		"created_at":      key.CreatedAt,
		"last_used_at":    key.LastUsedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

func (s *APIKeyStore) GetKey(ctx context.Context, keyID string) (*models.APIKey, error) {
	sql := "SELECT key_id, key_hash, user_id, name, scopes, allowed_buckets, active, expires_at, created_at, last_used_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("api_key", keyID),
	}
	return s.queryOne(ctx, sql, vars)
}

func (s *APIKeyStore) GetKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	sql := "SELECT key_id, key_hash, user_id, name, scopes, allowed_buckets, active, expires_at, created_at, last_used_at FROM api_key WHERE key_hash = $key_hash"
	vars := map[string]any{"key_hash": keyHash}
	return s.queryOne(ctx, sql, vars)
}

func (s *APIKeyStore) ListKeysByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	sql := "SELECT key_id, key_hash, user_id, name, scopes, allowed_buckets, active, expires_at, created_at, last_used_at FROM api_key WHERE user_id = $user_id"
	vars := map[string]any{"user_id": userID}
	results, err := surrealdb.Query[[]keyRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	var keys []*models.APIKey
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			keys = append(keys, keyFromRow(row))
		}
	}
	return keys, nil
}

func (s *APIKeyStore) DeleteKey(ctx context.Context, keyID string) error {
	rid := surrealmodels.NewRecordID("api_key", keyID)
	if _, err := surrealdb.Delete[keyRow](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return nil
}

func (s *APIKeyStore) UpdateKeyLastUsed(ctx context.Context, keyID string, lastUsedAt time.Time) error {
	sql := "UPDATE $rid SET last_used_at = $last_used_at"
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("api_key", keyID),
		"last_used_at": lastUsedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update api key last_used_at: %w", err)
	}
	return nil
}

func (s *APIKeyStore) queryOne(ctx context.Context, sql string, vars map[string]any) (*models.APIKey, error) {
	results, err := surrealdb.Query[[]keyRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return keyFromRow((*results)[0].Result[0]), nil
}

func keyFromRow(row keyRow) *models.APIKey {
	return &models.APIKey{
		KeyID:          row.KeyID,
		KeyHash:        row.KeyHash,
		UserID:         row.UserID,
		Name:           row.Name,
		Scopes:         row.Scopes,
		AllowedBuckets: row.AllowedBuckets,
		Active:         row.Active,
		ExpiresAt:      row.ExpiresAt,
		CreatedAt:      row.CreatedAt,
		LastUsedAt:     row.LastUsedAt,
	}
}

// Compile-time check
var _ interfaces.APIKeyStore = (*APIKeyStore)(nil)
