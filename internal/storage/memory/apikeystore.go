package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
)

// APIKeyStore implements interfaces.APIKeyStore with a map keyed by hash.
type APIKeyStore struct {
	mu   sync.Mutex
	keys map[string]*models.APIKey
}

// NewAPIKeyStore creates an empty in-memory API key store.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{keys: make(map[string]*models.APIKey)}
}

func (s *APIKeyStore) SaveKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := *key
	s.keys[key.KeyHash] = &k
	return nil
}

func (s *APIKeyStore) GetKey(_ context.Context, keyID string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.keys {
		if key.KeyID == keyID {
			k := *key
			return &k, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *APIKeyStore) GetKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyHash]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	k := *key
	return &k, nil
}

func (s *APIKeyStore) ListKeysByUser(_ context.Context, userID string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.APIKey
	for _, key := range s.keys {
		if key.UserID == userID {
			k := *key
			result = append(result, &k)
		}
	}
	return result, nil
}

func (s *APIKeyStore) DeleteKey(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, key := range s.keys {
		if key.KeyID == keyID {
			delete(s.keys, hash)
		}
	}
	return nil
}

func (s *APIKeyStore) UpdateKeyLastUsed(_ context.Context, keyID string, lastUsedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.keys {
		if key.KeyID == keyID {
			key.LastUsedAt = lastUsedAt
		}
	}
	return nil
}

// Compile-time check
var _ interfaces.APIKeyStore = (*APIKeyStore)(nil)
