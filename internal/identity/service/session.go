package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/mail"
	"github.com/marketa/identity/internal/identity/store"
	"github.com/marketa/identity/pkg/cryptox"
	"github.com/marketa/identity/pkg/idx"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// SessionService owns the local-credential account lifecycle: registration,
// login/logout and profile mutations. Every operation is one load, one
// focused mutation, one persist.
type SessionService struct {
	store  store.Store
	tokens *TokenService
	mail   mail.Dispatcher
	logger *slog.Logger
}

func NewSessionService(st store.Store, tokens *TokenService, dispatcher mail.Dispatcher, logger *slog.Logger) *SessionService {
	return &SessionService{store: st, tokens: tokens, mail: dispatcher, logger: logger}
}

type RegisterParams struct {
	Username string
	Email    string
	Password string
}

func (p RegisterParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required, validation.Length(3, 32)),
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(8, 128)),
	)
}

// Register creates an unverified identity and dispatches its verification
// token. No tokens are issued until the address is confirmed. A dispatch
// failure rolls the registration back.
func (s *SessionService) Register(ctx context.Context, params RegisterParams) (domain.Identity, error) {
	if err := params.Validate(); err != nil {
		return domain.Identity{}, err
	}

	hash, err := cryptox.HashPassword(params.Password)
	if err != nil {
		return domain.Identity{}, err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Identity{}, err
	}
	tokenHash := cryptox.FingerprintToken(token)

	ident := domain.Identity{
		ID:                    idx.New().String(),
		Username:              params.Username,
		Email:                 &params.Email,
		PasswordHash:          hash,
		VerificationTokenHash: &tokenHash,
		Theme:                 domain.ThemeLight,
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Identities().Create(ctx, ident); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailInUse
			}
			return err
		}
		if err := s.mail.SendVerification(ctx, params.Email, token); err != nil {
			return fmt.Errorf("%w: %w", ErrMailDispatch, err)
		}
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}

	s.logger.InfoContext(ctx, "identity registered",
		slog.String("identity_id", ident.ID),
	)

	return ident, nil
}

type LoginParams struct {
	Email    string
	Password string
}

func (p LoginParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

// Login checks credentials and issues a session. Unknown email and wrong
// password collapse into the same error. An unverified identity logs in
// without tokens (nil pair).
func (s *SessionService) Login(ctx context.Context, params LoginParams) (domain.Identity, *domain.TokenPair, error) {
	if err := params.Validate(); err != nil {
		return domain.Identity{}, nil, err
	}

	ident, err := s.store.Identities().FindByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, nil, ErrInvalidCredentials
		}
		return domain.Identity{}, nil, err
	}

	if err := cryptox.VerifyPassword(params.Password, ident.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.Identity{}, nil, ErrInvalidCredentials
		}
		return domain.Identity{}, nil, err
	}

	pair, ident, err := s.tokens.IssueSession(ctx, ident)
	if err != nil {
		return domain.Identity{}, nil, err
	}

	return ident, pair, nil
}

// Logout drops the session fields unconditionally; logging out twice is fine.
func (s *SessionService) Logout(ctx context.Context, identityID string) error {
	ident, err := s.getByID(ctx, identityID)
	if err != nil {
		return err
	}

	ident.AccessToken = nil
	ident.RefreshRecord = nil

	return s.store.Identities().Save(ctx, ident)
}

func (s *SessionService) GetByID(ctx context.Context, identityID string) (domain.Identity, error) {
	return s.getByID(ctx, identityID)
}

type UpdateProfileParams struct {
	Username *string
	Email    *string
	Password *string
}

func (p UpdateProfileParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Length(3, 32)),
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.Password, validation.Length(8, 128)),
	)
}

// UpdateProfile applies a partial update: only the fields present change.
// A password change re-hashes; no tokens are reissued.
func (s *SessionService) UpdateProfile(ctx context.Context, identityID string, params UpdateProfileParams) (domain.Identity, error) {
	if err := params.Validate(); err != nil {
		return domain.Identity{}, err
	}

	ident, err := s.getByID(ctx, identityID)
	if err != nil {
		return domain.Identity{}, err
	}

	if params.Username != nil {
		ident.Username = *params.Username
	}
	if params.Email != nil {
		ident.Email = params.Email
	}
	if params.Password != nil {
		hash, err := cryptox.HashPassword(*params.Password)
		if err != nil {
			return domain.Identity{}, err
		}
		ident.PasswordHash = hash
	}

	if err := s.store.Identities().Save(ctx, ident); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Identity{}, ErrEmailInUse
		}
		return domain.Identity{}, err
	}

	return ident, nil
}

// UpdateAvatarURL swaps the avatar; an empty URL clears it.
func (s *SessionService) UpdateAvatarURL(ctx context.Context, identityID, avatarURL string) (domain.Identity, error) {
	if avatarURL != "" {
		if err := validation.Validate(avatarURL, is.URL); err != nil {
			return domain.Identity{}, err
		}
	}

	ident, err := s.getByID(ctx, identityID)
	if err != nil {
		return domain.Identity{}, err
	}

	if avatarURL == "" {
		ident.AvatarURL = nil
	} else {
		ident.AvatarURL = &avatarURL
	}

	if err := s.store.Identities().Save(ctx, ident); err != nil {
		return domain.Identity{}, err
	}
	return ident, nil
}

// UpdateTheme sets the UI theme; only the closed set {light, dark} passes.
func (s *SessionService) UpdateTheme(ctx context.Context, identityID, theme string) (domain.Identity, error) {
	switch domain.Theme(theme) {
	case domain.ThemeLight, domain.ThemeDark:
	default:
		return domain.Identity{}, ErrInvalidTheme
	}

	ident, err := s.getByID(ctx, identityID)
	if err != nil {
		return domain.Identity{}, err
	}

	ident.Theme = domain.Theme(theme)

	if err := s.store.Identities().Save(ctx, ident); err != nil {
		return domain.Identity{}, err
	}
	return ident, nil
}

func (s *SessionService) getByID(ctx context.Context, identityID string) (domain.Identity, error) {
	ident, err := s.store.Identities().FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrNotFound
		}
		return domain.Identity{}, err
	}
	return ident, nil
}
