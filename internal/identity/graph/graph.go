// Package graph fetches user profiles from OAuth provider graph APIs.
// Profile data is a best-effort enrichment: callers must tolerate a nil
// profile and proceed without it.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/marketa/identity/internal/identity/domain"
)

const defaultTimeout = 5 * time.Second

// Fetcher retrieves the provider-side profile for an access token. A nil
// profile with a nil error means the provider could not be reached or
// returned garbage; login proceeds without enrichment.
type Fetcher interface {
	FetchProfile(ctx context.Context, provider, accessToken string) (*domain.Profile, error)
}

type providerEndpoint struct {
	url    string
	fields string
}

var endpoints = map[string]providerEndpoint{
	"facebook": {
		url:    "https://graph.facebook.com/me",
		fields: "id,name,email,picture",
	},
	"google": {
		url: "https://www.googleapis.com/oauth2/v2/userinfo",
	},
}

// HTTPClient talks to the real provider graph endpoints with a bounded
// timeout. Failures are logged and swallowed.
type HTTPClient struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPClient(logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

func (c *HTTPClient) FetchProfile(ctx context.Context, provider, accessToken string) (*domain.Profile, error) {
	endpoint, ok := endpoints[provider]
	if !ok {
		return nil, nil
	}

	req, err := c.buildRequest(ctx, endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "profile fetch failed",
			slog.String("provider", provider),
			slog.Any("error", err),
		)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "profile fetch rejected",
			slog.String("provider", provider),
			slog.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	profile, err := decodeProfile(provider, resp)
	if err != nil {
		c.logger.WarnContext(ctx, "profile decode failed",
			slog.String("provider", provider),
			slog.Any("error", err),
		)
		return nil, nil
	}
	return profile, nil
}

func (c *HTTPClient) buildRequest(ctx context.Context, endpoint providerEndpoint, accessToken string) (*http.Request, error) {
	u, err := url.Parse(endpoint.url)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	if endpoint.fields != "" {
		q.Set("fields", endpoint.fields)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req, nil
}

func decodeProfile(provider string, resp *http.Response) (*domain.Profile, error) {
	switch provider {
	case "facebook":
		var body struct {
			ID      string  `json:"id"`
			Name    string  `json:"name"`
			Email   *string `json:"email"`
			Picture *struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			} `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}

		profile := &domain.Profile{
			ProviderID:  body.ID,
			DisplayName: body.Name,
			Email:       body.Email,
		}
		if body.Picture != nil && body.Picture.Data.URL != "" {
			profile.AvatarURL = &body.Picture.Data.URL
		}
		return profile, nil

	case "google":
		var body struct {
			ID      string  `json:"id"`
			Name    string  `json:"name"`
			Email   *string `json:"email"`
			Picture *string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}

		return &domain.Profile{
			ProviderID:  body.ID,
			DisplayName: body.Name,
			Email:       body.Email,
			AvatarURL:   body.Picture,
		}, nil

	default:
		return nil, fmt.Errorf("graph: no decoder for provider %q", provider)
	}
}
