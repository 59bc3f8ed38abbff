package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotOwner is returned when a user operates on a client they do not own.
var ErrNotOwner = errors.New("client not owned by user")

// RegisterClient registers a new OAuth client. For confidential clients the
// plaintext secret is returned exactly once; only the bcrypt hash is stored.
func (s *Service) RegisterClient(ctx context.Context, reg interfaces.ClientRegistration) (*models.Client, string, error) {
	if len(reg.RedirectURIs) == 0 {
		return nil, "", invalidRequest("redirect_uris is required")
	}
	for _, uri := range reg.RedirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, "", invalidRequest(fmt.Sprintf("redirect_uri %q is not an absolute URI", uri))
		}
	}

	name := strings.TrimSpace(reg.Name)
	if name == "" {
		name = "Unnamed Client"
	}

	scopes := intersectScopes(reg.Scopes, DefaultGrantedScopes)
	if len(scopes) == 0 {
		scopes = append([]string{}, DefaultGrantedScopes...)
	}

	now := time.Now()
	client := &models.Client{
		ClientID:     models.ClientIDPrefix + randomToken(24),
		Name:         name,
		RedirectURIs: reg.RedirectURIs,
		Scopes:       scopes,
		OwnerUserID:  reg.OwnerUserID,
		Public:       reg.Public,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	secret := ""
	if !reg.Public {
		secret = randomToken(48)
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.SecretHash = string(hash)
	}

	if err := s.store.SaveClient(ctx, client); err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("client_id", client.ClientID).
		Str("client_name", client.Name).
		Bool("public", client.Public).
		Bool("owned", client.Owned()).
		Msg("OAuth client registered")

	return client, secret, nil
}

// GetClient fetches a client by id.
func (s *Service) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	return s.store.GetClient(ctx, clientID)
}

// ValidateClient authenticates a client for the token endpoint. Public
// clients carry no secret; confidential clients must present theirs.
func (s *Service) ValidateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, invalidClient("unknown client")
		}
		return nil, err
	}

	if client.Public {
		return client, nil
	}

	if clientSecret == "" {
		return nil, invalidClient("client authentication required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		return nil, invalidClient("invalid client credentials")
	}
	return client, nil
}

// ListClientsByOwner lists the clients owned by a user.
func (s *Service) ListClientsByOwner(ctx context.Context, userID string) ([]*models.Client, error) {
	return s.store.ListClientsByOwner(ctx, userID)
}

// DeleteClient removes a client the user owns and revokes every token
// issued to it.
func (s *Service) DeleteClient(ctx context.Context, clientID, ownerUserID string) error {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.OwnerUserID != ownerUserID {
		return ErrNotOwner
	}

	if err := s.store.RevokeTokensForClient(ctx, clientID); err != nil {
		return err
	}
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		return err
	}
	s.logger.Info().Str("client_id", clientID).Str("user_id", ownerUserID).Msg("OAuth client deleted")
	return nil
}

// BindOwner binds an unowned (dynamically registered) client to the user
// who first consents to it. A no-op for already-owned clients.
func (s *Service) BindOwner(ctx context.Context, clientID, userID string) error {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Owned() {
		return nil
	}
	client.OwnerUserID = userID
	client.UpdatedAt = time.Now()
	if err := s.store.SaveClient(ctx, client); err != nil {
		return err
	}
	s.logger.Info().Str("client_id", clientID).Str("user_id", userID).Msg("DCR client bound to owner")
	return nil
}

// RedirectURITrusted reports whether the redirect URI may be used with the
// client: exact registration match, global allowlist, or any URI while the
// client is still unowned.
func (s *Service) RedirectURITrusted(client *models.Client, redirectURI string) bool {
	if client.HasRedirectURI(redirectURI) {
		return true
	}
	for _, uri := range AllowedRedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return !client.Owned()
}

// ValidateScope checks the requested scope string against what the client
// may be granted and returns the normalized grant. An empty request grants
// the client's full scope set.
func (s *Service) ValidateScope(client *models.Client, requested string) (string, error) {
	allowed := client.Scopes
	if len(allowed) == 0 {
		allowed = DefaultGrantedScopes
	}

	requested = normalizeScope(requested)
	if requested == "" {
		return strings.Join(allowed, " "), nil
	}

	for _, scope := range strings.Fields(requested) {
		if !containsScope(allowed, scope) && !containsScope(DefaultGrantedScopes, scope) {
			return "", invalidScope(fmt.Sprintf("scope %q not granted to client", scope))
		}
	}
	return requested, nil
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func intersectScopes(requested, allowed []string) []string {
	var result []string
	for _, s := range requested {
		if containsScope(allowed, s) {
			result = append(result, s)
		}
	}
	return result
}
