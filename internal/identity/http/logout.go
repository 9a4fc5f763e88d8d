package http

import (
	"net/http"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
)

type LogoutHandler struct {
	Sessions *service.SessionService
}

// ServeHTTP drops the caller's session. Safe to repeat.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identityID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	if err := h.Sessions.Logout(r.Context(), identityID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
