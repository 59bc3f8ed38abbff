package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// APIKeyStore implements interfaces.APIKeyStore using BadgerHold.
// Keys are stored under KeyID; hash lookup uses a query.
type APIKeyStore struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewAPIKeyStore creates a new APIKeyStore.
func NewAPIKeyStore(db *badgerhold.Store, logger *common.Logger) *APIKeyStore {
	return &APIKeyStore{db: db, logger: logger}
}

func (s *APIKeyStore) SaveKey(_ context.Context, key *models.APIKey) error {
	if err := s.db.Upsert(key.KeyID, key); err != nil {
		return fmt.Errorf("failed to save api key '%s': %w", key.KeyID, err)
	}
	s.logger.Debug().Str("key_id", key.KeyID).Str("user_id", key.UserID).Msg("API key saved")
	return nil
}

func (s *APIKeyStore) GetKey(_ context.Context, keyID string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.Get(keyID, &key); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key '%s': %w", keyID, err)
	}
	return &key, nil
}

func (s *APIKeyStore) GetKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.Find(&keys, badgerhold.Where("KeyHash").Eq(keyHash)); err != nil {
		return nil, fmt.Errorf("failed to look up api key by hash: %w", err)
	}
	if len(keys) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &keys[0], nil
}

func (s *APIKeyStore) ListKeysByUser(_ context.Context, userID string) ([]*models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.Find(&keys, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list api keys for user '%s': %w", userID, err)
	}
	result := make([]*models.APIKey, len(keys))
	for i := range keys {
		result[i] = &keys[i]
	}
	return result, nil
}

func (s *APIKeyStore) DeleteKey(_ context.Context, keyID string) error {
	if err := s.db.Delete(keyID, models.APIKey{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete api key '%s': %w", keyID, err)
	}
	return nil
}

func (s *APIKeyStore) UpdateKeyLastUsed(_ context.Context, keyID string, lastUsedAt time.Time) error {
	var key models.APIKey
	if err := s.db.Get(keyID, &key); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get api key '%s': %w", keyID, err)
	}
	key.LastUsedAt = lastUsedAt
	if err := s.db.Update(keyID, &key); err != nil {
		return fmt.Errorf("failed to update api key last_used_at: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.APIKeyStore = (*APIKeyStore)(nil)
