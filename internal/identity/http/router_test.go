package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/service"
	"github.com/marketa/identity/internal/identity/store/drivers/sqlite"
	"github.com/marketa/identity/pkg/cryptox"
	"github.com/marketa/identity/pkg/jwtx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "identity-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type tokenSink struct {
	mu   sync.Mutex
	last map[string]string
}

func (s *tokenSink) SendVerification(ctx context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[email] = token
	return nil
}

type noFetcher struct{}

func (noFetcher) FetchProfile(ctx context.Context, provider, accessToken string) (*domain.Profile, error) {
	return nil, nil
}

type testServer struct {
	ts   *httptest.Server
	mail *tokenSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.DiscardHandler)
	sink := &tokenSink{last: map[string]string{}}

	secret := []byte("router-test-secret-router-test-secret")
	tokens, err := service.NewTokenService(st, service.TokenConfig{
		Secret:     secret,
		Issuer:     "identity-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	verifier, err := jwtx.NewHS256(secret, "identity-test")
	require.NoError(t, err)

	router := NewRouter(verifier, "test", st, logger)
	router.TokenService = tokens
	router.SessionService = service.NewSessionService(st, tokens, sink, logger)
	router.VerificationService = service.NewVerificationService(st, sink)
	router.OAuthService = service.NewOAuthService(st, tokens, noFetcher{}, logger)
	router.ApplyRoutes()

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, mail: sink}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}

	return resp, decoded
}

func (s *testServer) lastToken(t *testing.T, email string) string {
	t.Helper()
	s.mail.mu.Lock()
	defer s.mail.mu.Unlock()
	token := s.mail.last[email]
	require.NotEmpty(t, token)
	return token
}

// register → verify → login, the whole happy path over the wire.
func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, body["verified"])
	assert.NotContains(t, body, "password_hash")

	t.Run("login before verification carries no tokens", func(t *testing.T) {
		resp, body := srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "hunter2hunter2",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, "tokens")
	})

	resp, body = srv.do(t, http.MethodGet, "/v1/auth/verify/"+srv.lastToken(t, "alice@example.com"), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["verified"])

	resp, body = srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tokens, ok := body["tokens"].(map[string]any)
	require.True(t, ok, "verified login must return tokens")
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)

	t.Run("current user", func(t *testing.T) {
		resp, body := srv.do(t, http.MethodGet, "/v1/users/me", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "alice", body["username"])
	})

	t.Run("refresh rotates and old token dies", func(t *testing.T) {
		resp, body := srv.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		rotated := body["tokens"].(map[string]any)
		assert.NotEqual(t, refresh, rotated["refresh_token"])

		resp, _ = srv.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout", func(t *testing.T) {
		resp, _ := srv.do(t, http.MethodPost, "/v1/auth/logout", access, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestAuthFailures(t *testing.T) {
	srv := newTestServer(t)

	t.Run("bad credentials", func(t *testing.T) {
		resp, _ := srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"email":    "ghost@example.com",
			"password": "whatever-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid register payload", func(t *testing.T) {
		resp, _ := srv.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
			"username": "x",
			"email":    "nope",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		payload := map[string]string{
			"username": "bob",
			"email":    "bob@example.com",
			"password": "hunter2hunter2",
		}
		resp, _ := srv.do(t, http.MethodPost, "/v1/auth/register", "", payload)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, _ = srv.do(t, http.MethodPost, "/v1/auth/register", "", payload)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("garbage verification token", func(t *testing.T) {
		resp, _ := srv.do(t, http.MethodGet, "/v1/auth/verify/garbage", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		for _, route := range []struct{ method, path string }{
			{http.MethodGet, "/v1/users/me"},
			{http.MethodPatch, "/v1/users/me"},
			{http.MethodPost, "/v1/auth/logout"},
		} {
			resp, _ := srv.do(t, route.method, route.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode,
				fmt.Sprintf("%s %s", route.method, route.path))
		}
	})
}

func TestProfileRoutes(t *testing.T) {
	srv := newTestServer(t)

	_, _ = srv.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	_, _ = srv.do(t, http.MethodGet, "/v1/auth/verify/"+srv.lastToken(t, "alice@example.com"), "", nil)
	_, body := srv.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	access := body["tokens"].(map[string]any)["access_token"].(string)

	t.Run("theme", func(t *testing.T) {
		resp, body := srv.do(t, http.MethodPatch, "/v1/users/me/theme", access, map[string]string{
			"theme": "dark",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "dark", body["theme"])

		resp, _ = srv.do(t, http.MethodPatch, "/v1/users/me/theme", access, map[string]string{
			"theme": "solarized",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("avatar", func(t *testing.T) {
		resp, body := srv.do(t, http.MethodPatch, "/v1/users/me/avatar", access, map[string]string{
			"avatar_url": "https://cdn.example.com/a.png",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "https://cdn.example.com/a.png", body["avatar_url"])
	})

	t.Run("profile patch", func(t *testing.T) {
		resp, body := srv.do(t, http.MethodPatch, "/v1/users/me", access, map[string]string{
			"username": "alice-renamed",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "alice-renamed", body["username"])
		assert.Equal(t, "alice@example.com", body["email"])
	})
}

func TestOAuthRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodPost, "/v1/auth/oauth", "", map[string]any{
		"provider":     "google",
		"provider_id":  "g-1",
		"display_name": "Alice",
		"email":        "alice@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ident := body["identity"].(map[string]any)
	assert.Equal(t, true, ident["verified"])
	assert.Contains(t, ident["providers"], "google")
	assert.Contains(t, body, "tokens")

	t.Run("missing provider identity", func(t *testing.T) {
		resp, _ := srv.do(t, http.MethodPost, "/v1/auth/oauth", "", map[string]any{
			"provider":     "google",
			"display_name": "Mystery",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSystemRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = srv.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
