package service

import (
	"context"
	"errors"
	"time"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/store"
	"github.com/marketa/identity/pkg/cryptox"
	"github.com/marketa/identity/pkg/jwtx"
)

// TokenConfig carries everything token issuance needs. The secret is
// injected here, never read from ambient process state.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService mints access/refresh pairs and rotates refresh tokens.
type TokenService struct {
	store  store.Store
	signer jwtx.Signer
	cfg    TokenConfig

	now func() time.Time
}

func NewTokenService(st store.Store, cfg TokenConfig) (*TokenService, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	signer, err := jwtx.NewHS256(cfg.Secret, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	return &TokenService{
		store:  st,
		signer: signer,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// IssueSession mints a fresh token pair for a verified identity and persists
// the session fields. Unverified identities get no tokens and no mutation.
//
// The stored refresh value is a fingerprint; the opaque token in the returned
// pair exists nowhere else.
func (s *TokenService) IssueSession(ctx context.Context, ident domain.Identity) (*domain.TokenPair, domain.Identity, error) {
	if !ident.Verified {
		return nil, ident, nil
	}

	pair, record, err := s.mint(ident)
	if err != nil {
		return nil, ident, err
	}

	ident.AccessToken = &pair.AccessToken
	ident.RefreshRecord = record

	if err := s.store.Identities().Save(ctx, ident); err != nil {
		return nil, ident, err
	}

	return pair, ident, nil
}

// Rotate exchanges a live refresh token for a fresh pair. Single use: the
// swap is guarded by the old fingerprint, so of two concurrent rotations
// exactly one succeeds and the other reports ErrInvalidRefresh.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, domain.Identity, error) {
	oldHash := cryptox.FingerprintToken(refreshToken)

	ident, err := s.store.Identities().FindByRefreshToken(ctx, oldHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.Identity{}, ErrInvalidRefresh
		}
		return nil, domain.Identity{}, err
	}

	if ident.RefreshRecord == nil || ident.RefreshRecord.Expired(s.now()) {
		return nil, domain.Identity{}, ErrExpiredRefresh
	}

	pair, record, err := s.mint(ident)
	if err != nil {
		return nil, domain.Identity{}, err
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Identities().SwapRefreshRecord(ctx, ident.ID, oldHash, *record, pair.AccessToken)
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleRefresh) {
			return nil, domain.Identity{}, ErrInvalidRefresh
		}
		return nil, domain.Identity{}, err
	}

	ident.AccessToken = &pair.AccessToken
	ident.RefreshRecord = record

	return pair, ident, nil
}

func (s *TokenService) mint(ident domain.Identity) (*domain.TokenPair, *domain.RefreshRecord, error) {
	now := s.now()

	claims := jwtx.NewAccessClaims(
		ident.ID, ident.Username, ident.EmailValue(),
		s.cfg.AccessTTL, s.cfg.Issuer, now,
	)

	access, err := s.signer.Sign(claims)
	if err != nil {
		return nil, nil, err
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, nil, err
	}

	record := &domain.RefreshRecord{
		TokenHash: cryptox.FingerprintToken(refresh),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, record, nil
}
