package http

import (
	"encoding/json"
	"net/http"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type OAuthHandler struct {
	OAuth *service.OAuthService
}

// ServeHTTP handles a provider login: the client supplies whatever profile
// the provider disclosed plus, optionally, the provider access token so the
// service can top the profile up itself.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider    string  `json:"provider"`
		AccessToken string  `json:"access_token"`
		ProviderID  string  `json:"provider_id"`
		DisplayName string  `json:"display_name"`
		Email       *string `json:"email"`
		AvatarURL   *string `json:"avatar_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Provider == "" {
		httpx.WriteError(w, http.StatusBadRequest, "provider is required")
		return
	}

	profile := domain.Profile{
		ProviderID:  body.ProviderID,
		DisplayName: body.DisplayName,
		Email:       body.Email,
		AvatarURL:   body.AvatarURL,
	}

	ident, pair, err := h.OAuth.Login(r.Context(), body.Provider, body.AccessToken, profile)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(ident, pair))
}
