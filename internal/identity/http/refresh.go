package http

import (
	"encoding/json"
	"net/http"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type RefreshHandler struct {
	Tokens *service.TokenService
}

// ServeHTTP rotates a refresh token. The presented token is single use: a
// second attempt with the same value is rejected.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, ident, err := h.Tokens.Rotate(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(ident, pair))
}
