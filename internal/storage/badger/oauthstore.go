package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// OAuthStore implements interfaces.OAuthStore using BadgerHold.
type OAuthStore struct {
	db     *badgerhold.Store
	logger *common.Logger

	// Guards the check-and-set in ConsumeCode. The database is embedded,
	// so a process-local mutex is sufficient for single-use semantics.
	consumeMu sync.Mutex
}

// NewOAuthStore creates a new OAuthStore.
func NewOAuthStore(db *badgerhold.Store, logger *common.Logger) *OAuthStore {
	return &OAuthStore{db: db, logger: logger}
}

// --- Clients ---

func (s *OAuthStore) SaveClient(_ context.Context, client *models.Client) error {
	if err := s.db.Upsert(client.ClientID, client); err != nil {
		return fmt.Errorf("failed to save client '%s': %w", client.ClientID, err)
	}
	s.logger.Debug().Str("client_id", client.ClientID).Msg("OAuth client saved")
	return nil
}

func (s *OAuthStore) GetClient(_ context.Context, clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Get(clientID, &client); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client '%s': %w", clientID, err)
	}
	return &client, nil
}

func (s *OAuthStore) ListClientsByOwner(_ context.Context, userID string) ([]*models.Client, error) {
	var clients []models.Client
	if err := s.db.Find(&clients, badgerhold.Where("OwnerUserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list clients for user '%s': %w", userID, err)
	}
	result := make([]*models.Client, len(clients))
	for i := range clients {
		result[i] = &clients[i]
	}
	return result, nil
}

func (s *OAuthStore) DeleteClient(_ context.Context, clientID string) error {
	if err := s.db.Delete(clientID, models.Client{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete client '%s': %w", clientID, err)
	}
	return nil
}

// --- Authorization codes ---

func (s *OAuthStore) SaveCode(_ context.Context, code *models.AuthorizationCode) error {
	if err := s.db.Upsert(code.CodeHash, code); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

func (s *OAuthStore) ConsumeCode(_ context.Context, codeHash, clientID, redirectURI string) (*models.AuthorizationCode, error) {
	s.consumeMu.Lock()
	defer s.consumeMu.Unlock()

	var code models.AuthorizationCode
	if err := s.db.Get(codeHash, &code); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	if code.Used || code.ClientID != clientID || code.RedirectURI != redirectURI {
		return nil, interfaces.ErrNotFound
	}

	code.Used = true
	if err := s.db.Update(codeHash, &code); err != nil {
		return nil, fmt.Errorf("failed to mark authorization code used: %w", err)
	}
	return &code, nil
}

func (s *OAuthStore) PurgeExpiredCodes(_ context.Context) (int, error) {
	var codes []models.AuthorizationCode
	if err := s.db.Find(&codes, badgerhold.Where("ExpiresAt").Lt(time.Now())); err != nil {
		return 0, fmt.Errorf("failed to find expired codes: %w", err)
	}
	purged := 0
	for i := range codes {
		if err := s.db.Delete(codes[i].CodeHash, models.AuthorizationCode{}); err == nil {
			purged++
		}
	}
	return purged, nil
}

// --- Access tokens ---

func (s *OAuthStore) SaveAccessToken(_ context.Context, token *models.AccessToken) error {
	if err := s.db.Upsert(token.TokenHash, token); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetAccessToken(_ context.Context, tokenHash string) (*models.AccessToken, error) {
	var token models.AccessToken
	if err := s.db.Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return &token, nil
}

func (s *OAuthStore) RevokeAccessToken(_ context.Context, tokenHash string) error {
	var token models.AccessToken
	if err := s.db.Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to get access token: %w", err)
	}
	token.Revoked = true
	if err := s.db.Update(tokenHash, &token); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	return nil
}

// --- Refresh tokens ---

func (s *OAuthStore) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if err := s.db.Upsert(token.TokenHash, token); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := s.db.Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &token, nil
}

func (s *OAuthStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	var token models.RefreshToken
	if err := s.db.Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to get refresh token: %w", err)
	}
	token.Revoked = true
	if err := s.db.Update(tokenHash, &token); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *OAuthStore) UpdateRefreshTokenLastUsed(_ context.Context, tokenHash string, lastUsedAt time.Time) error {
	var token models.RefreshToken
	if err := s.db.Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get refresh token: %w", err)
	}
	token.LastUsedAt = lastUsedAt
	if err := s.db.Update(tokenHash, &token); err != nil {
		return fmt.Errorf("failed to update refresh token last_used_at: %w", err)
	}
	return nil
}

func (s *OAuthStore) RevokeTokensForClient(ctx context.Context, clientID string) error {
	var refresh []models.RefreshToken
	if err := s.db.Find(&refresh, badgerhold.Where("ClientID").Eq(clientID)); err != nil {
		return fmt.Errorf("failed to find refresh tokens for client '%s': %w", clientID, err)
	}
	for i := range refresh {
		if err := s.RevokeRefreshToken(ctx, refresh[i].TokenHash); err != nil {
			return err
		}
	}

	var access []models.AccessToken
	if err := s.db.Find(&access, badgerhold.Where("ClientID").Eq(clientID)); err != nil {
		return fmt.Errorf("failed to find access tokens for client '%s': %w", clientID, err)
	}
	for i := range access {
		if err := s.RevokeAccessToken(ctx, access[i].TokenHash); err != nil {
			return err
		}
	}
	s.logger.Debug().Str("client_id", clientID).Int("refresh", len(refresh)).Int("access", len(access)).Msg("Revoked tokens for client")
	return nil
}

func (s *OAuthStore) PurgeExpiredTokens(_ context.Context) (int, error) {
	now := time.Now()
	purged := 0

	var access []models.AccessToken
	if err := s.db.Find(&access, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to find expired access tokens: %w", err)
	}
	for i := range access {
		if err := s.db.Delete(access[i].TokenHash, models.AccessToken{}); err == nil {
			purged++
		}
	}

	var refresh []models.RefreshToken
	if err := s.db.Find(&refresh, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to find expired refresh tokens: %w", err)
	}
	for i := range refresh {
		if err := s.db.Delete(refresh[i].TokenHash, models.RefreshToken{}); err == nil {
			purged++
		}
	}
	return purged, nil
}

// Compile-time check
var _ interfaces.OAuthStore = (*OAuthStore)(nil)
