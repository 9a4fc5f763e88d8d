package http

import (
	"encoding/json"
	"net/http"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type LoginHandler struct {
	Sessions *service.SessionService
}

// ServeHTTP exchanges email+password for a session. Unverified identities
// log in fine but the response carries no tokens.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ident, pair, err := h.Sessions.Login(r.Context(), service.LoginParams{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(ident, pair))
}
