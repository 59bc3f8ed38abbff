package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
)

// ErrTokenInvalid is returned when an access token is unknown, revoked or
// expired. Callers present a single generic failure to the credential
// holder.
var ErrTokenInvalid = errors.New("invalid or expired access token")

// IssueTokens mints an access/refresh pair for the user and client. The
// audience defaults to the gateway's protected-resource identifier when no
// resource indicator was supplied.
func (s *Service) IssueTokens(ctx context.Context, userID, clientID, scope, resource string) (*models.TokenResponse, error) {
	now := time.Now()
	accessTTL := s.config.Auth.GetAccessTokenTTL()

	audience := resource
	if audience == "" {
		audience = s.config.ResourceURL()
	}

	accessToken := models.AccessTokenPrefix + randomToken(48)
	refreshToken := models.RefreshTokenPrefix + randomToken(64)
	accessHash := hashToken(accessToken)

	access := &models.AccessToken{
		TokenHash: accessHash,
		UserID:    userID,
		ClientID:  clientID,
		Scope:     normalizeScope(scope),
		Resource:  resource,
		Audience:  audience,
		ExpiresAt: now.Add(accessTTL),
		CreatedAt: now,
	}
	if err := s.store.SaveAccessToken(ctx, access); err != nil {
		return nil, err
	}

	refresh := &models.RefreshToken{
		TokenHash:       hashToken(refreshToken),
		UserID:          userID,
		ClientID:        clientID,
		Scope:           access.Scope,
		Resource:        resource,
		Audience:        audience,
		AccessTokenHash: accessHash,
		ExpiresAt:       now.Add(s.config.Auth.GetRefreshTokenTTL()),
		CreatedAt:       now,
		LastUsedAt:      now,
	}
	if err := s.store.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("client_id", clientID).
		Str("scope", access.Scope).
		Str("audience", audience).
		Msg("Token pair issued")

	return &models.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(accessTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        access.Scope,
	}, nil
}

// RefreshTokens rotates a refresh token. The presented token and its paired
// access token are always revoked, even when issuing the replacement fails,
// so a leaked refresh token cannot be replayed.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken, clientID string) (*models.TokenResponse, error) {
	record, err := s.store.GetRefreshToken(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, invalidGrant("Invalid or expired refresh token")
		}
		return nil, err
	}

	if record.Revoked || time.Now().After(record.ExpiresAt) {
		return nil, invalidGrant("Invalid or expired refresh token")
	}
	if record.ClientID != clientID {
		return nil, invalidGrant("refresh token was not issued to this client")
	}

	// Best effort; a failed timestamp update must not block the grant.
	if err := s.store.UpdateRefreshTokenLastUsed(ctx, record.TokenHash, time.Now()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update refresh token last-used time")
	}

	// Rotate first. The old pair dies regardless of what happens next.
	if err := s.store.RevokeRefreshToken(ctx, record.TokenHash); err != nil {
		return nil, err
	}
	if record.AccessTokenHash != "" {
		if err := s.store.RevokeAccessToken(ctx, record.AccessTokenHash); err != nil {
			return nil, err
		}
	}

	resp, err := s.IssueTokens(ctx, record.UserID, record.ClientID, record.Scope, record.Resource)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", record.UserID).
		Str("client_id", record.ClientID).
		Msg("Refresh token rotated")

	return resp, nil
}

// ValidateAccessToken resolves a bearer token to its stored record.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*models.AccessToken, error) {
	record, err := s.store.GetAccessToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if record.Revoked || time.Now().After(record.ExpiresAt) {
		return nil, ErrTokenInvalid
	}
	return record, nil
}

// RevokeToken revokes an access or refresh token (RFC 7009). Revoking a
// refresh token also revokes its paired access token. Unknown tokens are
// not an error.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	hash := hashToken(token)

	tryRefresh := func() (bool, error) {
		record, err := s.store.GetRefreshToken(ctx, hash)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if err := s.store.RevokeRefreshToken(ctx, hash); err != nil {
			return false, err
		}
		if record.AccessTokenHash != "" {
			if err := s.store.RevokeAccessToken(ctx, record.AccessTokenHash); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	tryAccess := func() (bool, error) {
		if _, err := s.store.GetAccessToken(ctx, hash); err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, s.store.RevokeAccessToken(ctx, hash)
	}

	// Prefixed tokens dispatch directly; unprefixed values try both.
	switch {
	case strings.HasPrefix(token, models.RefreshTokenPrefix):
		_, err := tryRefresh()
		return err
	case strings.HasPrefix(token, models.AccessTokenPrefix):
		_, err := tryAccess()
		return err
	default:
		revoked, err := tryRefresh()
		if err != nil || revoked {
			return err
		}
		_, err = tryAccess()
		return err
	}
}

// PurgeExpired removes expired codes and tokens. Run periodically.
func (s *Service) PurgeExpired(ctx context.Context) error {
	codes, err := s.store.PurgeExpiredCodes(ctx)
	if err != nil {
		return err
	}
	tokens, err := s.store.PurgeExpiredTokens(ctx)
	if err != nil {
		return err
	}
	if codes > 0 || tokens > 0 {
		s.logger.Debug().Int("codes", codes).Int("tokens", tokens).Msg("Purged expired grants")
	}
	return nil
}
