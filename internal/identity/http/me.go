package http

import (
	"encoding/json"
	"net/http"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type MeHandler struct {
	Sessions *service.SessionService
}

// HandleGet returns the caller's own identity, sanitized.
func (h *MeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identityID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	ident, err := h.Sessions.GetByID(r.Context(), identityID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newIdentityResponse(ident))
}

// HandlePatch applies a partial profile update. Absent fields are untouched.
func (h *MeHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	identityID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	var body struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ident, err := h.Sessions.UpdateProfile(r.Context(), identityID, service.UpdateProfileParams{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newIdentityResponse(ident))
}

// HandleAvatar sets or clears the avatar URL.
func (h *MeHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	identityID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	var body struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ident, err := h.Sessions.UpdateAvatarURL(r.Context(), identityID, body.AvatarURL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newIdentityResponse(ident))
}

// HandleTheme sets the UI theme; only "light" and "dark" pass.
func (h *MeHandler) HandleTheme(w http.ResponseWriter, r *http.Request) {
	identityID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	var body struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ident, err := h.Sessions.UpdateTheme(r.Context(), identityID, body.Theme)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newIdentityResponse(ident))
}
