package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// clientRow is the DB-level representation of an OAuth client.
type clientRow struct {
	ClientID     string    `json:"client_id"`
	SecretHash   string    `json:"secret_hash"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	OwnerUserID  string    `json:"owner_user_id"`
	Public       bool      `json:"public"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// codeRow is the DB-level representation of an authorization code.
type codeRow struct {
	CodeHash            string    `json:"code_hash"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	Resource            string    `json:"resource"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	Used                bool      `json:"used"`
	ExpiresAt           time.Time `json:"expires_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// accessRow is the DB-level representation of an access token.
type accessRow struct {
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	Resource  string    `json:"resource"`
	Audience  string    `json:"audience"`
	Revoked   bool      `json:"revoked"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// refreshRow is the DB-level representation of a refresh token.
type refreshRow struct {
	TokenHash       string    `json:"token_hash"`
	UserID          string    `json:"user_id"`
	ClientID        string    `json:"client_id"`
	Scope           string    `json:"scope"`
	Resource        string    `json:"resource"`
	Audience        string    `json:"audience"`
	AccessTokenHash string    `json:"access_token_hash"`
	Revoked         bool      `json:"revoked"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsedAt      time.Time `json:"last_used_at"`
}

// OAuthStore implements interfaces.OAuthStore using SurrealDB.
type OAuthStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewOAuthStore creates a new OAuthStore.
func NewOAuthStore(db *surrealdb.DB, logger *common.Logger) *OAuthStore {
	return &OAuthStore{db: db, logger: logger}
}

// --- Clients ---

func (s *OAuthStore) SaveClient(ctx context.Context, client *models.Client) error {
	sql := `UPSERT $rid SET
		client_id = $client_id, secret_hash = $secret_hash, name = $name,
		redirect_uris = $redirect_uris, scopes = $scopes,
		owner_user_id = $owner_user_id, public = $public,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("oauth_client", client.ClientID),
		"client_id":     client.ClientID,
		"secret_hash":   client.SecretHash,
		"name":          client.Name,
		"redirect_uris": client.RedirectURIs,
		"scopes":        client.Scopes,
		"owner_user_id": client.OwnerUserID,
		"public":        client.Public,
		"created_at":    client.CreatedAt,
		"updated_at":    client.UpdatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save oauth client: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	sql := "SELECT client_id, secret_hash, name, redirect_uris, scopes, owner_user_id, public, created_at, updated_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("oauth_client", clientID),
	}
	results, err := surrealdb.Query[[]clientRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get oauth client: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return clientFromRow((*results)[0].Result[0]), nil
}

func (s *OAuthStore) ListClientsByOwner(ctx context.Context, userID string) ([]*models.Client, error) {
	sql := "SELECT client_id, secret_hash, name, redirect_uris, scopes, owner_user_id, public, created_at, updated_at FROM oauth_client WHERE owner_user_id = $user_id"
	vars := map[string]any{"user_id": userID}
	results, err := surrealdb.Query[[]clientRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth clients: %w", err)
	}
	var clients []*models.Client
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			clients = append(clients, clientFromRow(row))
		}
	}
	return clients, nil
}

func (s *OAuthStore) DeleteClient(ctx context.Context, clientID string) error {
	rid := surrealmodels.NewRecordID("oauth_client", clientID)
	if _, err := surrealdb.Delete[clientRow](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete oauth client: %w", err)
	}
	return nil
}

// --- Authorization codes ---

func (s *OAuthStore) SaveCode(ctx context.Context, code *models.AuthorizationCode) error {
	sql := `UPSERT $rid SET
		code_hash = $code_hash, client_id = $client_id, user_id = $user_id,
		redirect_uri = $redirect_uri, scope = $scope, resource = $resource,
		code_challenge = $code_challenge,
		code_challenge_method = $code_challenge_method,
		used = $used, expires_at = $expires_at, created_at = $created_at`
	vars := map[string]any{
		"rid":                   surrealmodels.NewRecordID("oauth_code", code.CodeHash),
		"code_hash":             code.CodeHash,
		"client_id":             code.ClientID,
		"user_id":               code.UserID,
		"redirect_uri":          code.RedirectURI,
		"scope":                 code.Scope,
		"resource":              code.Resource,
		"code_challenge":        code.CodeChallenge,
		"code_challenge_method": code.CodeChallengeMethod,
		"used":                  code.Used,
		"expires_at":            code.ExpiresAt,
		"created_at":            code.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// ConsumeCode flips used in a single conditional UPDATE so replayed codes
// cannot pass twice even under concurrent requests.
func (s *OAuthStore) ConsumeCode(ctx context.Context, codeHash, clientID, redirectURI string) (*models.AuthorizationCode, error) {
	sql := `UPDATE $rid SET used = true
		WHERE client_id = $client_id AND redirect_uri = $redirect_uri AND used = false
		RETURN AFTER`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("oauth_code", codeHash),
		"client_id":    clientID,
		"redirect_uri": redirectURI,
	}
	results, err := surrealdb.Query[[]codeRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.AuthorizationCode{
		CodeHash:            row.CodeHash,
		ClientID:            row.ClientID,
		UserID:              row.UserID,
		RedirectURI:         row.RedirectURI,
		Scope:               row.Scope,
		Resource:            row.Resource,
		CodeChallenge:       row.CodeChallenge,
		CodeChallengeMethod: row.CodeChallengeMethod,
		Used:                row.Used,
		ExpiresAt:           row.ExpiresAt,
		CreatedAt:           row.CreatedAt,
	}, nil
}

func (s *OAuthStore) PurgeExpiredCodes(ctx context.Context) (int, error) {
	sql := "DELETE FROM oauth_code WHERE expires_at < $now"
	vars := map[string]any{"now": time.Now()}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired codes: %w", err)
	}
	// SurrealDB DELETE doesn't return count easily; return 0 as best effort
	return 0, nil
}

// --- Access tokens ---

func (s *OAuthStore) SaveAccessToken(ctx context.Context, token *models.AccessToken) error {
	sql := `UPSERT $rid SET
		token_hash = $token_hash, user_id = $user_id, client_id = $client_id,
		scope = $scope, resource = $resource, audience = $audience,
		revoked = $revoked, expires_at = $expires_at, created_at = $created_at`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("oauth_access_token", token.TokenHash),
		"token_hash": token.TokenHash,
		"user_id":    token.UserID,
		"client_id":  token.ClientID,
		"scope":      token.Scope,
		"resource":   token.Resource,
		"audience":   token.Audience,
		"revoked":    token.Revoked,
		"expires_at": token.ExpiresAt,
		"created_at": token.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetAccessToken(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	sql := "SELECT token_hash, user_id, client_id, scope, resource, audience, revoked, expires_at, created_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("oauth_access_token", tokenHash),
	}
	results, err := surrealdb.Query[[]accessRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.AccessToken{
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		ClientID:  row.ClientID,
		Scope:     row.Scope,
		Resource:  row.Resource,
		Audience:  row.Audience,
		Revoked:   row.Revoked,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *OAuthStore) RevokeAccessToken(ctx context.Context, tokenHash string) error {
	sql := "UPDATE $rid SET revoked = true"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("oauth_access_token", tokenHash),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	return nil
}

// --- Refresh tokens ---

func (s *OAuthStore) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	sql := `UPSERT $rid SET
		token_hash = $token_hash, user_id = $user_id, client_id = $client_id,
		scope = $scope, resource = $resource, audience = $audience,
		access_token_hash = $access_token_hash, revoked = $revoked,
		expires_at = $expires_at, created_at = $created_at,
		last_used_at = $last_used_at`
	vars := map[string]any{
		"rid":               surrealmodels.NewRecordID("oauth_refresh_token", token.TokenHash),
		"token_hash":        token.TokenHash,
		"user_id":           token.UserID,
		"client_id":         token.ClientID,
		"scope":             token.Scope,
		"resource":          token.Resource,
		"audience":          token.Audience,
		"access_token_hash": token.AccessTokenHash,
		"revoked":           token.Revoked,
		"expires_at":        token.ExpiresAt,
		"created_at":        token.CreatedAt,
		"last_used_at":      token.LastUsedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	sql := "SELECT token_hash, user_id, client_id, scope, resource, audience, access_token_hash, revoked, expires_at, created_at, last_used_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("oauth_refresh_token", tokenHash),
	}
	results, err := surrealdb.Query[[]refreshRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.RefreshToken{
		TokenHash:       row.TokenHash,
		UserID:          row.UserID,
		ClientID:        row.ClientID,
		Scope:           row.Scope,
		Resource:        row.Resource,
		Audience:        row.Audience,
		AccessTokenHash: row.AccessTokenHash,
		Revoked:         row.Revoked,
		ExpiresAt:       row.ExpiresAt,
		CreatedAt:       row.CreatedAt,
		LastUsedAt:      row.LastUsedAt,
	}, nil
}

func (s *OAuthStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	sql := "UPDATE $rid SET revoked = true"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("oauth_refresh_token", tokenHash),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *OAuthStore) UpdateRefreshTokenLastUsed(ctx context.Context, tokenHash string, lastUsedAt time.Time) error {
	sql := "UPDATE $rid SET last_used_at = $last_used_at"
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("oauth_refresh_token", tokenHash),
		"last_used_at": lastUsedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update refresh token last_used_at: %w", err)
	}
	return nil
}

func (s *OAuthStore) RevokeTokensForClient(ctx context.Context, clientID string) error {
	sql := "UPDATE oauth_refresh_token SET revoked = true WHERE client_id = $client_id"
	vars := map[string]any{"client_id": clientID}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens for client: %w", err)
	}
	sql = "UPDATE oauth_access_token SET revoked = true WHERE client_id = $client_id"
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke access tokens for client: %w", err)
	}
	return nil
}

func (s *OAuthStore) PurgeExpiredTokens(ctx context.Context) (int, error) {
	vars := map[string]any{"now": time.Now()}
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE FROM oauth_access_token WHERE expires_at < $now", vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired access tokens: %w", err)
	}
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE FROM oauth_refresh_token WHERE expires_at < $now", vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired refresh tokens: %w", err)
	}
	return 0, nil
}

func clientFromRow(row clientRow) *models.Client {
	return &models.Client{
		ClientID:     row.ClientID,
		SecretHash:   row.SecretHash,
		Name:         row.Name,
		RedirectURIs: row.RedirectURIs,
		Scopes:       row.Scopes,
		OwnerUserID:  row.OwnerUserID,
		Public:       row.Public,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

// isNotFoundError reports whether the SurrealDB error indicates a missing record.
func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Compile-time check
var _ interfaces.OAuthStore = (*OAuthStore)(nil)
