package models

import "time"

// Client represents a registered OAuth client. Clients created through
// dynamic registration start unowned (OwnerUserID empty) and become bound
// to a user at first consent.
type Client struct {
	ClientID     string    `json:"client_id"`
	SecretHash   string    `json:"-"` // bcrypt; empty for public clients
	Name         string    `json:"client_name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	OwnerUserID  string    `json:"owner_user_id,omitempty"`
	Public       bool      `json:"public"` // token_endpoint_auth_method "none"
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Owned reports whether the client is bound to a user.
func (c *Client) Owned() bool {
	return c.OwnerUserID != ""
}

// HasRedirectURI reports whether uri exactly matches a registered URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// TokenResponse is the token endpoint response shape (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizationCode is a single-use grant stored by hash only.
type AuthorizationCode struct {
	CodeHash            string    `json:"-"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	Resource            string    `json:"resource,omitempty"` // RFC 8707 resource indicator
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"` // "S256", "plain" or empty
	Used                bool      `json:"used"`
	ExpiresAt           time.Time `json:"expires_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// AccessToken is an opaque bearer token stored by hash only.
type AccessToken struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	Resource  string    `json:"resource,omitempty"`
	Audience  string    `json:"audience"`
	Revoked   bool      `json:"revoked"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is stored by hash and paired with the access token it was
// issued alongside, so rotation and revocation cover both.
type RefreshToken struct {
	TokenHash       string    `json:"-"`
	UserID          string    `json:"user_id"`
	ClientID        string    `json:"client_id"`
	Scope           string    `json:"scope"`
	Resource        string    `json:"resource,omitempty"`
	Audience        string    `json:"audience"`
	AccessTokenHash string    `json:"-"`
	Revoked         bool      `json:"revoked"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsedAt      time.Time `json:"last_used_at"`
}
