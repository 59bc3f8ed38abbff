package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
)

// OAuthStore implements interfaces.OAuthStore with maps. A single mutex
// guards everything, which also gives ConsumeCode its check-and-set
// atomicity.
type OAuthStore struct {
	mu      sync.Mutex
	clients map[string]*models.Client
	codes   map[string]*models.AuthorizationCode
	access  map[string]*models.AccessToken
	refresh map[string]*models.RefreshToken
}

// NewOAuthStore creates an empty in-memory OAuth store.
func NewOAuthStore() *OAuthStore {
	return &OAuthStore{
		clients: make(map[string]*models.Client),
		codes:   make(map[string]*models.AuthorizationCode),
		access:  make(map[string]*models.AccessToken),
		refresh: make(map[string]*models.RefreshToken),
	}
}

// --- Clients ---

func (s *OAuthStore) SaveClient(_ context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *client
	s.clients[client.ClientID] = &c
	return nil
}

func (s *OAuthStore) GetClient(_ context.Context, clientID string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	c := *client
	return &c, nil
}

func (s *OAuthStore) ListClientsByOwner(_ context.Context, userID string) ([]*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Client
	for _, client := range s.clients {
		if client.OwnerUserID == userID {
			c := *client
			result = append(result, &c)
		}
	}
	return result, nil
}

func (s *OAuthStore) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	return nil
}

// --- Authorization codes ---

func (s *OAuthStore) SaveCode(_ context.Context, code *models.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *code
	s.codes[code.CodeHash] = &c
	return nil
}

func (s *OAuthStore) ConsumeCode(_ context.Context, codeHash, clientID, redirectURI string) (*models.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[codeHash]
	if !ok || code.Used || code.ClientID != clientID || code.RedirectURI != redirectURI {
		return nil, interfaces.ErrNotFound
	}
	code.Used = true
	c := *code
	return &c, nil
}

func (s *OAuthStore) PurgeExpiredCodes(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	purged := 0
	for hash, code := range s.codes {
		if code.ExpiresAt.Before(now) {
			delete(s.codes, hash)
			purged++
		}
	}
	return purged, nil
}

// --- Access tokens ---

func (s *OAuthStore) SaveAccessToken(_ context.Context, token *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *token
	s.access[token.TokenHash] = &t
	return nil
}

func (s *OAuthStore) GetAccessToken(_ context.Context, tokenHash string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.access[tokenHash]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	t := *token
	return &t, nil
}

func (s *OAuthStore) RevokeAccessToken(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.access[tokenHash]; ok {
		token.Revoked = true
	}
	return nil
}

// --- Refresh tokens ---

func (s *OAuthStore) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *token
	s.refresh[token.TokenHash] = &t
	return nil
}

func (s *OAuthStore) GetRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.refresh[tokenHash]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	t := *token
	return &t, nil
}

func (s *OAuthStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.refresh[tokenHash]; ok {
		token.Revoked = true
	}
	return nil
}

func (s *OAuthStore) UpdateRefreshTokenLastUsed(_ context.Context, tokenHash string, lastUsedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.refresh[tokenHash]
	if !ok {
		return interfaces.ErrNotFound
	}
	token.LastUsedAt = lastUsedAt
	return nil
}

func (s *OAuthStore) RevokeTokensForClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.access {
		if token.ClientID == clientID {
			token.Revoked = true
		}
	}
	for _, token := range s.refresh {
		if token.ClientID == clientID {
			token.Revoked = true
		}
	}
	return nil
}

func (s *OAuthStore) PurgeExpiredTokens(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	purged := 0
	for hash, token := range s.access {
		if token.ExpiresAt.Before(now) {
			delete(s.access, hash)
			purged++
		}
	}
	for hash, token := range s.refresh {
		if token.ExpiresAt.Before(now) {
			delete(s.refresh, hash)
			purged++
		}
	}
	return purged, nil
}

// Compile-time check
var _ interfaces.OAuthStore = (*OAuthStore)(nil)
