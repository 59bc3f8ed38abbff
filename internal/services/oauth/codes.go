package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
)

// IssueCode mints a single-use authorization code. The plaintext is
// returned for the redirect; only its hash is stored.
func (s *Service) IssueCode(ctx context.Context, req interfaces.CodeRequest) (string, error) {
	code := randomToken(32)
	now := time.Now()

	record := &models.AuthorizationCode{
		CodeHash:            hashToken(code),
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               normalizeScope(req.Scope),
		Resource:            req.Resource,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           now.Add(s.config.Auth.GetCodeTTL()),
		CreatedAt:           now,
	}
	if err := s.store.SaveCode(ctx, record); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("client_id", req.ClientID).
		Str("user_id", req.UserID).
		Str("scope", record.Scope).
		Bool("pkce", req.CodeChallenge != "").
		Msg("Authorization code issued")

	return code, nil
}

// ConsumeCode validates and burns an authorization code. The code is marked
// used atomically before expiry and PKCE checks, so a code that fails
// verification cannot be retried.
func (s *Service) ConsumeCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*models.AuthorizationCode, error) {
	record, err := s.store.ConsumeCode(ctx, hashToken(code), clientID, redirectURI)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, invalidGrant("Invalid or expired authorization code")
		}
		return nil, err
	}

	if time.Now().After(record.ExpiresAt) {
		return nil, invalidGrant("Invalid or expired authorization code")
	}

	if err := verifyPKCE(record, codeVerifier); err != nil {
		return nil, err
	}

	return record, nil
}

// verifyPKCE checks the code_verifier against the stored challenge
// (RFC 7636). Codes issued without a challenge skip verification.
func verifyPKCE(code *models.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return invalidGrant("code_verifier required")
	}

	switch code.CodeChallengeMethod {
	case "S256", "":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(computed), []byte(code.CodeChallenge)) != 1 {
			return invalidGrant("code_verifier does not match challenge")
		}
	case "plain":
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(code.CodeChallenge)) != 1 {
			return invalidGrant("code_verifier does not match challenge")
		}
	default:
		return invalidGrant("unsupported code_challenge_method")
	}
	return nil
}
