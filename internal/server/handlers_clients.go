package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/services/oauth"
)

// handleClients handles GET and POST /api/oauth/clients. Both require a
// user JWT; created clients are owned by the authenticated user.
func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleClientList(w, r)
	case http.MethodPost:
		s.handleClientCreate(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticateUser(r)
	if err != nil {
		writeBearerChallenge(w, s.app.Config, "invalid_token", err.Error())
		return
	}

	clients, err := s.app.OAuth.ListClientsByOwner(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list clients")
		WriteError(w, http.StatusInternalServerError, "failed to list clients")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	})
}

// clientCreateRequest is the owner-bound registration body.
type clientCreateRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scope        string   `json:"scope"`
	Public       bool     `json:"public"`
}

func (s *Server) handleClientCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticateUser(r)
	if err != nil {
		writeBearerChallenge(w, s.app.Config, "invalid_token", err.Error())
		return
	}

	var req clientCreateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	client, secret, err := s.app.OAuth.RegisterClient(r.Context(), interfaces.ClientRegistration{
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		Scopes:       strings.Fields(req.Scope),
		Public:       req.Public,
		OwnerUserID:  userID,
	})
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}

	resp := map[string]interface{}{
		"client": client,
	}
	if secret != "" {
		resp["client_secret"] = secret
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// handleClientDelete handles DELETE /api/oauth/clients/{id}. Deleting a
// client revokes every token issued to it.
func (s *Server) handleClientDelete(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	userID, err := s.authenticateUser(r)
	if err != nil {
		writeBearerChallenge(w, s.app.Config, "invalid_token", err.Error())
		return
	}

	clientID := PathParam(r, "/api/oauth/clients/", "")
	if clientID == "" {
		WriteError(w, http.StatusBadRequest, "client id is required in path")
		return
	}

	if err := s.app.OAuth.DeleteClient(r.Context(), clientID, userID); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, "client not found")
		case errors.Is(err, oauth.ErrNotOwner):
			WriteError(w, http.StatusForbidden, "client not owned by user")
		default:
			s.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to delete client")
			WriteError(w, http.StatusInternalServerError, "failed to delete client")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": clientID})
}
