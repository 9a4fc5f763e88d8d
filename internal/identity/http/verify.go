package http

import (
	"encoding/json"
	"net/http"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type VerifyHandler struct {
	Verification *service.VerificationService
}

// HandleConfirm consumes a verification token from the URL path. Tokens are
// single use; a replay reads as invalid.
func (h *VerifyHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "verification token is required")
		return
	}

	ident, err := h.Verification.Confirm(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newIdentityResponse(ident))
}

// HandleResend issues a fresh verification token, invalidating the previous
// one.
func (h *VerifyHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "email is required")
		return
	}

	if _, err := h.Verification.Request(r.Context(), body.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
