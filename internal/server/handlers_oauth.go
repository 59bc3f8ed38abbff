package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
	"github.com/aiveilix/aiveilix/internal/services/oauth"
)

// oauthErrorResponse is the RFC 6749 §5.2 error shape.
type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeOAuthError writes an OAuth protocol error. invalid_client gets 401
// with a WWW-Authenticate challenge per §5.2; everything else is 400.
func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	var oerr *oauth.Error
	if !errors.As(err, &oerr) {
		s.logger.Error().Err(err).Msg("OAuth endpoint failure")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusBadRequest
	if oerr.Code == oauth.ErrCodeInvalidClient {
		status = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	WriteJSON(w, status, oauthErrorResponse{Error: oerr.Code, ErrorDescription: oerr.Description})
}

// redirectWithError redirects to a trusted redirect_uri with error
// parameters per RFC 6749 §4.1.2.1.
func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, errCode, errDescription, state string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		WriteError(w, http.StatusBadRequest, errDescription)
		return
	}
	q := u.Query()
	q.Set("error", errCode)
	q.Set("error_description", errDescription)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// authenticateUser validates the consent-flow user JWT (HS256) and returns
// the user id from the sub claim.
func (s *Server) authenticateUser(r *http.Request) (string, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.app.Config.Auth.UserJWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// verifyClientAndRedirect validates the client_id and redirect_uri. If the
// client is unknown or the redirect_uri is untrusted we MUST NOT redirect;
// the error is written directly. Returns nil when an error was written.
func (s *Server) verifyClientAndRedirect(w http.ResponseWriter, r *http.Request, clientID, redirectURI string) *models.Client {
	if clientID == "" {
		WriteError(w, http.StatusBadRequest, "client_id is required")
		return nil
	}
	if redirectURI == "" {
		WriteError(w, http.StatusBadRequest, "redirect_uri is required")
		return nil
	}
	client, err := s.app.OAuth.GetClient(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusBadRequest, "unknown client_id")
			return nil
		}
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("Client lookup failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return nil
	}
	if !s.app.OAuth.RedirectURITrusted(client, redirectURI) {
		WriteError(w, http.StatusBadRequest, "redirect_uri does not match any registered or allowed URIs")
		return nil
	}
	return client
}

// --- Authorization Endpoint ---

// handleOAuthAuthorize handles GET /oauth/authorize. After the client and
// redirect_uri check out, the request is forwarded to the frontend consent
// page with all parameters intact.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")
	scope := q.Get("scope")
	state := q.Get("state")
	resource := q.Get("resource")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")

	client := s.verifyClientAndRedirect(w, r, clientID, redirectURI)
	if client == nil {
		return
	}

	// The redirect_uri is trusted from here on, so protocol errors go back
	// to the client application per RFC 6749.
	if responseType != "code" {
		redirectWithError(w, r, redirectURI, oauth.ErrCodeUnsupportedResponseType, "response_type must be 'code'", state)
		return
	}

	grantedScope, err := s.app.OAuth.ValidateScope(client, scope)
	if err != nil {
		redirectWithError(w, r, redirectURI, oauth.ErrCodeInvalidScope, err.Error(), state)
		return
	}

	consent, err := url.Parse(s.app.Config.Server.FrontendURL + "/oauth/consent")
	if err != nil {
		s.logger.Error().Err(err).Msg("Invalid frontend URL")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	cq := consent.Query()
	cq.Set("client_id", clientID)
	cq.Set("client_name", client.Name)
	cq.Set("redirect_uri", redirectURI)
	cq.Set("scope", grantedScope)
	if state != "" {
		cq.Set("state", state)
	}
	if resource != "" {
		cq.Set("resource", resource)
	}
	if codeChallenge != "" {
		cq.Set("code_challenge", codeChallenge)
		cq.Set("code_challenge_method", codeChallengeMethod)
	}
	consent.RawQuery = cq.Encode()
	http.Redirect(w, r, consent.String(), http.StatusFound)
}

// handleOAuthApprove handles POST /oauth/approve: the consent page posts
// the user's decision here with a user JWT. Approval binds unowned DCR
// clients to the approving user and issues an authorization code.
func (s *Server) handleOAuthApprove(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	userID, err := s.authenticateUser(r)
	if err != nil {
		writeBearerChallenge(w, s.app.Config, "invalid_token", err.Error())
		return
	}

	clientID := r.FormValue("client_id")
	redirectURI := r.FormValue("redirect_uri")
	scope := r.FormValue("scope")
	state := r.FormValue("state")
	resource := r.FormValue("resource")
	codeChallenge := r.FormValue("code_challenge")
	codeChallengeMethod := r.FormValue("code_challenge_method")

	client := s.verifyClientAndRedirect(w, r, clientID, redirectURI)
	if client == nil {
		return
	}

	if r.FormValue("deny") == "true" {
		redirectWithError(w, r, redirectURI, oauth.ErrCodeAccessDenied, "The user denied the request", state)
		return
	}

	grantedScope, err := s.app.OAuth.ValidateScope(client, scope)
	if err != nil {
		redirectWithError(w, r, redirectURI, oauth.ErrCodeInvalidScope, err.Error(), state)
		return
	}

	if err := s.app.OAuth.BindOwner(r.Context(), clientID, userID); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to bind client owner")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	code, err := s.app.OAuth.IssueCode(r.Context(), interfaces.CodeRequest{
		ClientID:            clientID,
		UserID:              userID,
		RedirectURI:         redirectURI,
		Scope:               grantedScope,
		Resource:            resource,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to issue authorization code")
		WriteError(w, http.StatusInternalServerError, "failed to issue authorization code")
		return
	}

	u, _ := url.Parse(redirectURI)
	uq := u.Query()
	uq.Set("code", code)
	if state != "" {
		uq.Set("state", state)
	}
	u.RawQuery = uq.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// --- Token Endpoint ---

// clientCredentials extracts client authentication from Basic auth
// (client_secret_basic) or the form body (client_secret_post).
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return r.FormValue("client_id"), r.FormValue("client_secret")
}

// handleOAuthToken handles POST /oauth/token for the authorization_code
// and refresh_token grants.
func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeInvalidRequest, "invalid form data"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	client, err := s.app.OAuth.ValidateClient(r.Context(), clientID, clientSecret)
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}

	// Public clients carry no secret and must prove possession with PKCE
	// on the authorization_code grant.
	var resp *models.TokenResponse
	switch r.FormValue("grant_type") {
	case "authorization_code":
		code := r.FormValue("code")
		redirectURI := r.FormValue("redirect_uri")
		codeVerifier := r.FormValue("code_verifier")
		if code == "" {
			s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeInvalidRequest, "code is required"))
			return
		}
		if client.Public && codeVerifier == "" {
			s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeInvalidRequest, "code_verifier is required for public clients"))
			return
		}

		grant, err := s.app.OAuth.ConsumeCode(r.Context(), code, client.ClientID, redirectURI, codeVerifier)
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}
		resource := r.FormValue("resource")
		if resource == "" {
			resource = grant.Resource
		}
		resp, err = s.app.OAuth.IssueTokens(r.Context(), grant.UserID, client.ClientID, grant.Scope, resource)
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}

	case "refresh_token":
		refreshToken := r.FormValue("refresh_token")
		if refreshToken == "" {
			s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeInvalidRequest, "refresh_token is required"))
			return
		}
		resp, err = s.app.OAuth.RefreshTokens(r.Context(), refreshToken, client.ClientID)
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}

	default:
		s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeUnsupportedGrantType, "grant_type must be authorization_code or refresh_token"))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	WriteJSON(w, http.StatusOK, resp)
}

// --- Dynamic Client Registration (RFC 7591) ---

// dcrRequest is the registration request body.
type dcrRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
}

// handleOAuthRegister handles POST /oauth/register. Registration is open;
// the client stays unowned until a user first consents to it.
func (s *Server) handleOAuthRegister(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req dcrRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	client, secret, err := s.app.OAuth.RegisterClient(r.Context(), interfaces.ClientRegistration{
		Name:         req.ClientName,
		RedirectURIs: req.RedirectURIs,
		Scopes:       strings.Fields(req.Scope),
		Public:       req.TokenEndpointAuthMethod == "none",
	})
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}

	authMethod := "client_secret_basic"
	if client.Public {
		authMethod = "none"
	}

	resp := map[string]interface{}{
		"client_id":                  client.ClientID,
		"client_id_issued_at":        client.CreatedAt.Unix(),
		"client_secret_expires_at":   0,
		"client_name":                client.Name,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"scope":                      strings.Join(client.Scopes, " "),
		"token_endpoint_auth_method": authMethod,
	}
	if secret != "" {
		resp["client_secret"] = secret
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// --- Revocation (RFC 7009) ---

// handleOAuthRevoke handles POST /oauth/revoke. Per RFC 7009 the endpoint
// returns 200 whether or not the token existed.
func (s *Server) handleOAuthRevoke(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeInvalidRequest, "invalid form data"))
		return
	}

	token := r.FormValue("token")
	if token == "" {
		s.writeOAuthError(w, oauth.NewError(oauth.ErrCodeInvalidRequest, "token is required"))
		return
	}

	if err := s.app.OAuth.RevokeToken(r.Context(), token); err != nil {
		s.logger.Error().Err(err).Msg("Token revocation failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{})
}
