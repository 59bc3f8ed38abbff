package server

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/models"
)

const testRedirectURI = "https://app.example.com/callback"

func postForm(env *testEnv, path string, form url.Values, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return env.do(req)
}

func postJSON(env *testEnv, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return env.do(req)
}

// registerClient performs dynamic registration and returns the response body.
func registerClient(t *testing.T, env *testEnv, body string) map[string]interface{} {
	t.Helper()
	rec := postJSON(env, "/oauth/register", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	return resp
}

func pkcePair() (verifier, challenge string) {
	verifier = "test-verifier-0123456789-0123456789-0123456789"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestDynamicClientRegistration(t *testing.T) {
	env := newTestEnv(t, nil)

	public := registerClient(t, env, `{
		"client_name": "Public App",
		"redirect_uris": ["`+testRedirectURI+`"],
		"token_endpoint_auth_method": "none"
	}`)
	clientID, _ := public["client_id"].(string)
	assert.True(t, strings.HasPrefix(clientID, models.ClientIDPrefix))
	assert.Equal(t, "none", public["token_endpoint_auth_method"])
	assert.NotContains(t, public, "client_secret")
	assert.NotZero(t, public["client_id_issued_at"])

	confidential := registerClient(t, env, `{
		"client_name": "Confidential App",
		"redirect_uris": ["`+testRedirectURI+`"]
	}`)
	assert.Equal(t, "client_secret_basic", confidential["token_endpoint_auth_method"])
	secret, _ := confidential["client_secret"].(string)
	assert.NotEmpty(t, secret)
}

func TestDynamicClientRegistrationRequiresRedirectURIs(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postJSON(env, "/oauth/register", `{"client_name": "No URIs"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp oauthErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "invalid_request", resp.Error)
}

// runAuthorizationFlow drives register, authorize, approve and token for a
// public client and returns the token response.
func runAuthorizationFlow(t *testing.T, env *testEnv) (clientID string, tokens models.TokenResponse) {
	t.Helper()

	reg := registerClient(t, env, `{
		"client_name": "Flow App",
		"redirect_uris": ["`+testRedirectURI+`"],
		"token_endpoint_auth_method": "none",
		"scope": "query chat"
	}`)
	clientID = reg["client_id"].(string)

	verifier, challenge := pkcePair()

	// Authorize forwards to the consent page with parameters intact
	authorizeURL := "/oauth/authorize?" + url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {testRedirectURI},
		"response_type":         {"code"},
		"scope":                 {"query chat"},
		"state":                 {"xyz"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode()
	rec := env.do(httptest.NewRequest(http.MethodGet, authorizeURL, nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	consent, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(consent.String(), env.config.Server.FrontendURL+"/oauth/consent"))
	assert.Equal(t, clientID, consent.Query().Get("client_id"))
	assert.Equal(t, "Flow App", consent.Query().Get("client_name"))

	// The consent page posts the approval with the user's JWT
	rec = postForm(env, "/oauth/approve", url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"query chat"},
		"state":                 {"xyz"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}, userJWT(t, env.config.Auth.UserJWTSecret, "user-1"))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	callback, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code := callback.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "xyz", callback.Query().Get("state"))

	rec = postForm(env, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {verifier},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	decodeBody(t, rec, &tokens)
	assert.True(t, strings.HasPrefix(tokens.AccessToken, models.AccessTokenPrefix))
	assert.True(t, strings.HasPrefix(tokens.RefreshToken, models.RefreshTokenPrefix))
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.Equal(t, 3600, tokens.ExpiresIn)
	assert.Equal(t, "query chat", tokens.Scope)
	return clientID, tokens
}

func TestAuthorizationCodeFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	_, tokens := runAuthorizationFlow(t, env)

	// The issued token authenticates against the MCP transport
	req := httptest.NewRequest(http.MethodPost, "/mcp/protocol",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := registerClient(t, env, `{
		"client_name": "Replay App",
		"redirect_uris": ["`+testRedirectURI+`"],
		"token_endpoint_auth_method": "none"
	}`)
	clientID := reg["client_id"].(string)
	verifier, challenge := pkcePair()

	rec := postForm(env, "/oauth/approve", url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {testRedirectURI},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}, userJWT(t, env.config.Auth.UserJWTSecret, "user-1"))
	require.Equal(t, http.StatusFound, rec.Code)
	callback, _ := url.Parse(rec.Header().Get("Location"))
	code := callback.Query().Get("code")

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {verifier},
	}
	rec = postForm(env, "/oauth/token", tokenForm, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(env, "/oauth/token", tokenForm, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp oauthErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "invalid_grant", errResp.Error)
}

func TestAuthorizeUnknownClientDoesNotRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id=mcp_unknown&redirect_uri="+url.QueryEscape(testRedirectURI)+"&response_type=code", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestAuthorizeUnsupportedResponseType(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := registerClient(t, env, `{
		"client_name": "Implicit App",
		"redirect_uris": ["`+testRedirectURI+`"],
		"token_endpoint_auth_method": "none"
	}`)
	clientID := reg["client_id"].(string)

	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id="+clientID+
			"&redirect_uri="+url.QueryEscape(testRedirectURI)+
			"&response_type=token&state=abc", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), testRedirectURI))
	assert.Equal(t, "unsupported_response_type", loc.Query().Get("error"))
	assert.Equal(t, "abc", loc.Query().Get("state"))
}

func TestApproveRequiresUserJWT(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postForm(env, "/oauth/approve", url.Values{"client_id": {"mcp_x"}}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "resource_metadata=")
}

func TestApproveDenied(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := registerClient(t, env, `{
		"client_name": "Denied App",
		"redirect_uris": ["`+testRedirectURI+`"],
		"token_endpoint_auth_method": "none"
	}`)
	clientID := reg["client_id"].(string)

	rec := postForm(env, "/oauth/approve", url.Values{
		"client_id":    {clientID},
		"redirect_uri": {testRedirectURI},
		"state":        {"s1"},
		"deny":         {"true"},
	}, userJWT(t, env.config.Auth.UserJWTSecret, "user-1"))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, _ := url.Parse(rec.Header().Get("Location"))
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "s1", loc.Query().Get("state"))
}

func TestTokenInvalidClient(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := registerClient(t, env, `{
		"client_name": "Secret App",
		"redirect_uris": ["`+testRedirectURI+`"]
	}`)
	clientID := reg["client_id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/oauth/token",
		strings.NewReader(url.Values{"grant_type": {"authorization_code"}, "code": {"x"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, "wrong-secret")
	rec := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="oauth"`, rec.Header().Get("WWW-Authenticate"))

	var resp oauthErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "invalid_client", resp.Error)
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := registerClient(t, env, `{
		"client_name": "Grant App",
		"redirect_uris": ["`+testRedirectURI+`"],
		"token_endpoint_auth_method": "none"
	}`)
	clientID := reg["client_id"].(string)

	rec := postForm(env, "/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {clientID},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp oauthErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "unsupported_grant_type", resp.Error)
}

func TestRefreshTokenRotation(t *testing.T) {
	env := newTestEnv(t, nil)
	clientID, tokens := runAuthorizationFlow(t, env)

	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
		"client_id":     {clientID},
	}
	rec := postForm(env, "/oauth/token", refreshForm, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rotated models.TokenResponse
	decodeBody(t, rec, &rotated)
	assert.NotEqual(t, tokens.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The presented refresh token was rotated out
	rec = postForm(env, "/oauth/token", refreshForm, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// And its paired access token died with it
	req := httptest.NewRequest(http.MethodPost, "/mcp/protocol",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestRevokeToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, tokens := runAuthorizationFlow(t, env)

	rec := postForm(env, "/oauth/revoke", url.Values{"token": {tokens.AccessToken}}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/mcp/protocol",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	// RFC 7009: unknown tokens still return 200
	rec = postForm(env, "/oauth/revoke", url.Values{"token": {"avx_at_never-issued"}}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// A missing token parameter is a protocol error
	rec = postForm(env, "/oauth/revoke", url.Values{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientManagement(t *testing.T) {
	env := newTestEnv(t, nil)
	jwt := userJWT(t, env.config.Auth.UserJWTSecret, "user-1")

	rec := postJSON(env, "/api/oauth/clients", `{
		"name": "My Integration",
		"redirect_uris": ["`+testRedirectURI+`"]
	}`, jwt)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Client       models.Client `json:"client"`
		ClientSecret string        `json:"client_secret"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, "user-1", created.Client.OwnerUserID)
	assert.NotEmpty(t, created.ClientSecret)

	req := httptest.NewRequest(http.MethodGet, "/api/oauth/clients", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Clients []models.Client `json:"clients"`
		Count   int             `json:"count"`
	}
	decodeBody(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	// Another user cannot delete it
	otherJWT := userJWT(t, env.config.Auth.UserJWTSecret, "user-2")
	req = httptest.NewRequest(http.MethodDelete, "/api/oauth/clients/"+created.Client.ClientID, nil)
	req.Header.Set("Authorization", "Bearer "+otherJWT)
	assert.Equal(t, http.StatusForbidden, env.do(req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/oauth/clients/"+created.Client.ClientID, nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/oauth/clients/"+created.Client.ClientID, nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	assert.Equal(t, http.StatusNotFound, env.do(req).Code)
}

func TestTokenEndpointRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *common.Config) {
		c.Auth.RateLimit.RPS = 1
		c.Auth.RateLimit.Burst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := postForm(env, "/oauth/token", url.Values{"grant_type": {"authorization_code"}}, "")
		codes = append(codes, rec.Code)
	}
	assert.NotEqual(t, http.StatusTooManyRequests, codes[0])
	assert.NotEqual(t, http.StatusTooManyRequests, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])

	// Unlimited endpoints stay reachable
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
