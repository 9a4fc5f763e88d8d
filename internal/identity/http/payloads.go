package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/pkg/httpx"
	"github.com/marketa/identity/pkg/slogx"

	validation "github.com/go-ozzo/ozzo-validation"
)

// identityResponse is the sanitized public view of an identity. Password and
// token hashes never leave the service.
type identityResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     *string  `json:"email,omitempty"`
	Verified  bool     `json:"verified"`
	Theme     string   `json:"theme"`
	AvatarURL *string  `json:"avatar_url,omitempty"`
	Providers []string `json:"providers,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

func newIdentityResponse(ident domain.Identity) identityResponse {
	resp := identityResponse{
		ID:        ident.ID,
		Username:  ident.Username,
		Email:     ident.Email,
		Verified:  ident.Verified,
		Theme:     string(ident.Theme),
		AvatarURL: ident.AvatarURL,
	}
	for _, l := range ident.ProviderLinks {
		resp.Providers = append(resp.Providers, l.Provider)
	}
	if !ident.CreatedAt.IsZero() {
		resp.CreatedAt = ident.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type sessionResponse struct {
	Identity identityResponse `json:"identity"`
	Tokens   *tokenResponse   `json:"tokens,omitempty"`
}

func newSessionResponse(ident domain.Identity, pair *domain.TokenPair) sessionResponse {
	resp := sessionResponse{Identity: newIdentityResponse(ident)}
	if pair != nil && pair.Issued() {
		resp.Tokens = &tokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "Bearer",
		}
	}
	return resp
}

// writeServiceError maps service-layer errors onto HTTP statuses. Anything
// unmapped is a 500 and gets logged with its cause; the client only ever
// sees a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr validation.Errors
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, verr.Error())

	case errors.Is(err, service.ErrInvalidTheme),
		errors.Is(err, service.ErrMissingProviderIdentity),
		errors.Is(err, service.ErrInvalidVerification):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefresh),
		errors.Is(err, service.ErrExpiredRefresh):
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())

	case errors.Is(err, service.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, service.ErrEmailInUse),
		errors.Is(err, service.ErrAlreadyVerified):
		httpx.WriteError(w, http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrMailDispatch):
		httpx.WriteError(w, http.StatusBadGateway, "verification mail could not be delivered")

	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
