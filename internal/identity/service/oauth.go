package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/graph"
	"github.com/marketa/identity/internal/identity/store"
	"github.com/marketa/identity/pkg/cryptox"
	"github.com/marketa/identity/pkg/idx"
)

// OAuthService resolves provider identities against local accounts and
// provisions accounts for first-time provider logins.
type OAuthService struct {
	store  store.Store
	tokens *TokenService
	graph  graph.Fetcher
	logger *slog.Logger
}

func NewOAuthService(st store.Store, tokens *TokenService, fetcher graph.Fetcher, logger *slog.Logger) *OAuthService {
	return &OAuthService{store: st, tokens: tokens, graph: fetcher, logger: logger}
}

// Login is the full provider-login flow: top up an incomplete profile from
// the provider's graph API when an access token is available, then resolve.
// Fetch failures are swallowed; resolution proceeds with what we have.
func (s *OAuthService) Login(ctx context.Context, provider, providerAccessToken string, profile domain.Profile) (domain.Identity, *domain.TokenPair, error) {
	if providerAccessToken != "" && (!profile.HasEmail() || !profile.HasProviderID()) {
		fetched, err := s.graph.FetchProfile(ctx, provider, providerAccessToken)
		if err != nil {
			s.logger.WarnContext(ctx, "profile top-up failed",
				slog.String("provider", provider),
				slog.Any("error", err),
			)
		}
		if fetched != nil {
			profile = mergeProfiles(profile, *fetched)
		}
	}

	return s.ResolveOrCreate(ctx, provider, profile)
}

// ResolveOrCreate maps a provider profile onto a local identity:
// disclosed email first, then the (provider, providerID) link, and finally a
// brand new account. A session is always attempted afterwards; unverified
// identities get none.
func (s *OAuthService) ResolveOrCreate(ctx context.Context, provider string, profile domain.Profile) (domain.Identity, *domain.TokenPair, error) {
	if !profile.HasEmail() && !profile.HasProviderID() {
		return domain.Identity{}, nil, ErrMissingProviderIdentity
	}

	ident, err := s.resolve(ctx, provider, profile)
	if err != nil {
		return domain.Identity{}, nil, err
	}

	pair, ident, err := s.tokens.IssueSession(ctx, ident)
	if err != nil {
		return domain.Identity{}, nil, err
	}
	return ident, pair, nil
}

func (s *OAuthService) resolve(ctx context.Context, provider string, profile domain.Profile) (domain.Identity, error) {
	if profile.HasEmail() {
		ident, err := s.store.Identities().FindByEmail(ctx, *profile.Email)
		if err == nil {
			return s.adopt(ctx, ident, provider, profile)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, err
		}
	}

	if profile.HasProviderID() {
		ident, err := s.store.Identities().FindByProviderLink(ctx, provider, profile.ProviderID)
		if err == nil {
			return s.adopt(ctx, ident, provider, profile)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, err
		}
	}

	return s.create(ctx, provider, profile)
}

// adopt attaches the provider link (idempotent) and tops up fields the local
// identity is missing but the provider disclosed.
func (s *OAuthService) adopt(ctx context.Context, ident domain.Identity, provider string, profile domain.Profile) (domain.Identity, error) {
	if profile.HasProviderID() && !ident.HasProviderLink(provider) {
		link := domain.ProviderLink{Provider: provider, ProviderID: profile.ProviderID}
		if err := s.store.Identities().AddProviderLink(ctx, ident.ID, link); err != nil {
			return domain.Identity{}, err
		}
		ident.ProviderLinks = append(ident.ProviderLinks, link)
	}

	dirty := false
	if ident.Email == nil && profile.HasEmail() {
		// The provider attests the address, so the identity becomes verified.
		ident.Email = profile.Email
		ident.Verified = true
		ident.VerificationTokenHash = nil
		dirty = true
	}
	if ident.AvatarURL == nil && profile.AvatarURL != nil {
		ident.AvatarURL = profile.AvatarURL
		dirty = true
	}

	if dirty {
		if err := s.store.Identities().Save(ctx, ident); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domain.Identity{}, ErrEmailInUse
			}
			return domain.Identity{}, err
		}
	}

	return ident, nil
}

func (s *OAuthService) create(ctx context.Context, provider string, profile domain.Profile) (domain.Identity, error) {
	password, err := cryptox.GeneratePassword()
	if err != nil {
		return domain.Identity{}, err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Identity{}, err
	}

	ident := domain.Identity{
		ID:           idx.New().String(),
		Username:     usernameFor(provider, profile),
		PasswordHash: hash,
		// Verified only when the provider disclosed an address it attests.
		Verified:  profile.HasEmail(),
		Email:     profile.Email,
		AvatarURL: profile.AvatarURL,
		Theme:     domain.ThemeLight,
	}
	if profile.HasProviderID() {
		ident.ProviderLinks = []domain.ProviderLink{
			{Provider: provider, ProviderID: profile.ProviderID},
		}
	}

	err = s.store.Identities().Create(ctx, ident)
	if errors.Is(err, store.ErrAlreadyExists) && ident.Username != fallbackUsername(provider, profile) {
		// Display-name collision; retry once with the synthesized name.
		ident.Username = fallbackUsername(provider, profile)
		err = s.store.Identities().Create(ctx, ident)
	}
	if err != nil {
		return domain.Identity{}, err
	}

	s.logger.InfoContext(ctx, "provisioned identity from provider login",
		slog.String("identity_id", ident.ID),
		slog.String("provider", provider),
	)

	return ident, nil
}

func usernameFor(provider string, profile domain.Profile) string {
	if profile.DisplayName != "" {
		return profile.DisplayName
	}
	return fallbackUsername(provider, profile)
}

func fallbackUsername(provider string, profile domain.Profile) string {
	return fmt.Sprintf("user_%s_%s", provider, profile.ProviderID)
}

func mergeProfiles(base, fetched domain.Profile) domain.Profile {
	if !base.HasProviderID() {
		base.ProviderID = fetched.ProviderID
	}
	if base.DisplayName == "" {
		base.DisplayName = fetched.DisplayName
	}
	if !base.HasEmail() && fetched.Email != nil {
		base.Email = fetched.Email
	}
	if base.AvatarURL == nil {
		base.AvatarURL = fetched.AvatarURL
	}
	return base
}
