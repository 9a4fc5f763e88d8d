package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	token := env.mail.lastToken(t, "alice@example.com")

	t.Run("confirm flips verified and clears the token", func(t *testing.T) {
		ident, err := env.verification.Confirm(ctx, token)
		require.NoError(t, err)
		assert.True(t, ident.Verified)
		assert.Nil(t, ident.VerificationTokenHash)
	})

	t.Run("token is single use", func(t *testing.T) {
		_, err := env.verification.Confirm(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidVerification)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := env.verification.Confirm(ctx, "no-such-token")
		assert.ErrorIs(t, err, ErrInvalidVerification)
	})
}

func TestVerificationRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)

	first := env.mail.lastToken(t, "alice@example.com")

	t.Run("resend invalidates the previous token", func(t *testing.T) {
		_, err := env.verification.Request(ctx, "alice@example.com")
		require.NoError(t, err)

		second := env.mail.lastToken(t, "alice@example.com")
		require.NotEqual(t, first, second)

		_, err = env.verification.Confirm(ctx, first)
		assert.ErrorIs(t, err, ErrInvalidVerification)

		ident, err := env.verification.Confirm(ctx, second)
		require.NoError(t, err)
		assert.True(t, ident.Verified)
	})

	t.Run("already verified", func(t *testing.T) {
		_, err := env.verification.Request(ctx, "alice@example.com")
		assert.ErrorIs(t, err, ErrAlreadyVerified)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := env.verification.Request(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("dispatch failure leaves the old token live", func(t *testing.T) {
		_, err := env.sessions.Register(ctx, RegisterParams{
			Username: "bob",
			Email:    "bob@example.com",
			Password: "hunter2hunter2",
		})
		require.NoError(t, err)
		original := env.mail.lastToken(t, "bob@example.com")

		env.mail.fail = true
		_, err = env.verification.Request(ctx, "bob@example.com")
		env.mail.fail = false
		require.ErrorIs(t, err, ErrMailDispatch)

		ident, err := env.verification.Confirm(ctx, original)
		require.NoError(t, err)
		assert.True(t, ident.Verified)
	})
}
