package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/internal/identity/store"
	"github.com/marketa/identity/pkg/httpx"
	"github.com/marketa/identity/pkg/jwtx"
	"github.com/marketa/identity/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store               store.Store
	TokenService        *service.TokenService
	SessionService      *service.SessionService
	VerificationService *service.VerificationService
	OAuthService        *service.OAuthService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// Credential endpoints get the strict limit: they are the brute-force
	// surface.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(&RegisterHandler{Sessions: r.SessionService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(&LoginHandler{Sessions: r.SessionService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{Sessions: r.SessionService},
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{Tokens: r.TokenService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/oauth",
		httpx.Chain(&OAuthHandler{OAuth: r.OAuthService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	verify := &VerifyHandler{Verification: r.VerificationService}
	r.Mux.Handle("GET /v1/auth/verify/{token}",
		httpx.Chain(http.HandlerFunc(verify.HandleConfirm),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify/resend",
		httpx.Chain(http.HandlerFunc(verify.HandleResend),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerUsers() {
	me := &MeHandler{Sessions: r.SessionService}

	secured := func(h http.Handler) http.Handler {
		return httpx.Chain(h,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		)
	}

	r.Mux.Handle("GET /v1/users/me", secured(http.HandlerFunc(me.HandleGet)))
	r.Mux.Handle("PATCH /v1/users/me", secured(http.HandlerFunc(me.HandlePatch)))
	r.Mux.Handle("PATCH /v1/users/me/avatar", secured(http.HandlerFunc(me.HandleAvatar)))
	r.Mux.Handle("PATCH /v1/users/me/theme", secured(http.HandlerFunc(me.HandleTheme)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store, r.startTime, r.buildVersion))
}
