package http

import (
	"encoding/json"
	"net/http"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type RegisterHandler struct {
	Sessions *service.SessionService
}

// ServeHTTP creates an unverified account and triggers verification mail.
// No tokens come back until the address is confirmed.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ident, err := h.Sessions.Register(r.Context(), service.RegisterParams{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, newIdentityResponse(ident))
}
