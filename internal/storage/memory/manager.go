// Package memory provides a non-persistent storage backend backed by maps.
// It is used for development and tests; nothing survives a restart.
package memory

import (
	"context"

	"github.com/aiveilix/aiveilix/internal/interfaces"
)

// Manager implements interfaces.StorageManager over in-memory stores.
type Manager struct {
	oauthStore  *OAuthStore
	apiKeyStore *APIKeyStore
}

// NewManager creates an in-memory storage manager.
func NewManager() *Manager {
	return &Manager{
		oauthStore:  NewOAuthStore(),
		apiKeyStore: NewAPIKeyStore(),
	}
}

func (m *Manager) OAuthStore() interfaces.OAuthStore {
	return m.oauthStore
}

func (m *Manager) APIKeyStore() interfaces.APIKeyStore {
	return m.apiKeyStore
}

func (m *Manager) Ping(_ context.Context) error {
	return nil
}

func (m *Manager) Close() error {
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
