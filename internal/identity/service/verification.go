package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/mail"
	"github.com/marketa/identity/internal/identity/store"
	"github.com/marketa/identity/pkg/cryptox"
)

// VerificationService drives the one-way unverified → verified transition.
type VerificationService struct {
	store store.Store
	mail  mail.Dispatcher
}

func NewVerificationService(st store.Store, dispatcher mail.Dispatcher) *VerificationService {
	return &VerificationService{store: st, mail: dispatcher}
}

// Request issues a fresh verification token for an unverified identity and
// dispatches it. Latest wins: any prior outstanding token is invalidated.
// When dispatch fails the whole operation rolls back, leaving the previous
// token live.
func (s *VerificationService) Request(ctx context.Context, email string) (domain.Identity, error) {
	ident, err := s.store.Identities().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrNotFound
		}
		return domain.Identity{}, err
	}

	if ident.Verified {
		return domain.Identity{}, ErrAlreadyVerified
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Identity{}, err
	}

	tokenHash := cryptox.FingerprintToken(token)
	ident.VerificationTokenHash = &tokenHash

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Identities().Save(ctx, ident); err != nil {
			return err
		}
		if err := s.mail.SendVerification(ctx, email, token); err != nil {
			return fmt.Errorf("%w: %w", ErrMailDispatch, err)
		}
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}

	return ident, nil
}

// Confirm consumes a verification token, marking the identity verified.
// Irreversible; the token is single use.
func (s *VerificationService) Confirm(ctx context.Context, token string) (domain.Identity, error) {
	ident, err := s.store.Identities().FindByVerificationToken(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrInvalidVerification
		}
		return domain.Identity{}, err
	}

	if ident.Verified {
		return domain.Identity{}, ErrAlreadyVerified
	}

	ident.Verified = true
	ident.VerificationTokenHash = nil

	if err := s.store.Identities().Save(ctx, ident); err != nil {
		return domain.Identity{}, err
	}

	return ident, nil
}
