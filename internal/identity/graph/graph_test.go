package graph

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func clientFor(ts *httptest.Server, provider string) *HTTPClient {
	c := NewHTTPClient(discardLogger())
	c.client = ts.Client()
	endpoints[provider] = providerEndpoint{url: ts.URL}
	return c
}

func restoreEndpoints(t *testing.T) {
	t.Helper()
	saved := map[string]providerEndpoint{}
	for k, v := range endpoints {
		saved[k] = v
	}
	t.Cleanup(func() { endpoints = saved })
}

func TestFetchProfile_Google(t *testing.T) {
	restoreEndpoints(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g-1","name":"Alice","email":"alice@example.com","picture":"https://img/a"}`))
	}))
	defer ts.Close()

	c := clientFor(ts, "google")

	profile, err := c.FetchProfile(context.Background(), "google", "tok-123")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "g-1", profile.ProviderID)
	assert.Equal(t, "Alice", profile.DisplayName)
	require.NotNil(t, profile.Email)
	assert.Equal(t, "alice@example.com", *profile.Email)
	require.NotNil(t, profile.AvatarURL)
	assert.Equal(t, "https://img/a", *profile.AvatarURL)
}

func TestFetchProfile_FacebookWithoutEmail(t *testing.T) {
	restoreEndpoints(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"f-1","name":"Bob","picture":{"data":{"url":"https://img/b"}}}`))
	}))
	defer ts.Close()

	c := clientFor(ts, "facebook")

	profile, err := c.FetchProfile(context.Background(), "facebook", "tok-456")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "f-1", profile.ProviderID)
	assert.Nil(t, profile.Email)
	require.NotNil(t, profile.AvatarURL)
	assert.Equal(t, "https://img/b", *profile.AvatarURL)
}

func TestFetchProfile_DegradesOnFailure(t *testing.T) {
	restoreEndpoints(t)

	t.Run("provider error status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		c := clientFor(ts, "google")

		profile, err := c.FetchProfile(context.Background(), "google", "tok")
		require.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer ts.Close()

		c := clientFor(ts, "facebook")

		profile, err := c.FetchProfile(context.Background(), "facebook", "tok")
		require.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("unknown provider", func(t *testing.T) {
		c := NewHTTPClient(discardLogger())
		profile, err := c.FetchProfile(context.Background(), "myspace", "tok")
		require.NoError(t, err)
		assert.Nil(t, profile)
	})
}
