package models

// Credential prefixes. Every token minted by this service carries an
// explicit versioned prefix so the credential bridge can dispatch without
// guessing; unprefixed values fall back to a legacy length heuristic.
const (
	AccessTokenPrefix  = "avx_at_"
	RefreshTokenPrefix = "avx_rt_"
	APIKeyPrefix       = "avx_sk_"
	ClientIDPrefix     = "mcp_"
)

// AuthType values for Principal.
const (
	AuthTypeOAuth  = "oauth"
	AuthTypeAPIKey = "api_key"
)

// Principal is the unified identity produced by credential resolution.
// Exactly one of ClientID (oauth) or APIKeyID (api_key) is set.
type Principal struct {
	UserID         string   `json:"user_id"`
	AuthType       string   `json:"auth_type"`
	ClientID       string   `json:"client_id,omitempty"`
	APIKeyID       string   `json:"api_key_id,omitempty"`
	Scopes         []string `json:"scopes"`
	AllowedBuckets []string `json:"allowed_buckets,omitempty"` // nil = unrestricted
}

// HasScope reports whether the principal carries the required scope.
// "full" and "*" grant everything.
func (p *Principal) HasScope(required string) bool {
	for _, s := range p.Scopes {
		if s == required || s == "full" || s == "*" {
			return true
		}
	}
	return false
}
