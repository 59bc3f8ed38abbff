// Package badger implements the gateway stores using BadgerHold.
// All records live in a single embedded database; codes and tokens are
// keyed by their SHA-256 hex hash.
package badger

import (
	"context"
	"fmt"
	"os"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// Manager implements interfaces.StorageManager on an embedded BadgerHold
// database shared by both stores.
type Manager struct {
	db     *badgerhold.Store
	logger *common.Logger

	oauthStore  *OAuthStore
	apiKeyStore *APIKeyStore
}

// NewManager opens (or creates) the database at path.
func NewManager(logger *common.Logger, path string) (*Manager, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open auth db at %s: %w", path, err)
	}

	m := &Manager{
		db:          db,
		logger:      logger,
		oauthStore:  NewOAuthStore(db, logger),
		apiKeyStore: NewAPIKeyStore(db, logger),
	}
	logger.Info().Str("path", path).Msg("Badger storage manager initialized")
	return m, nil
}

func (m *Manager) OAuthStore() interfaces.OAuthStore {
	return m.oauthStore
}

func (m *Manager) APIKeyStore() interfaces.APIKeyStore {
	return m.apiKeyStore
}

// Ping is a no-op liveness check for the embedded store.
func (m *Manager) Ping(_ context.Context) error {
	if m.db == nil {
		return fmt.Errorf("auth db not open")
	}
	return nil
}

// Close shuts down the database.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
