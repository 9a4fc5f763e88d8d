package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/store"
	"github.com/marketa/identity/pkg/idx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func strPtr(v string) *string { return &v }

func newIdentity(username string, email *string) domain.Identity {
	return domain.Identity{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		Theme:        domain.ThemeLight,
	}
}

func TestIdentities_CreateAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Identities()

	ident := newIdentity("alice", strPtr("alice@example.com"))
	ident.VerificationTokenHash = strPtr("vtok-hash")
	require.NoError(t, repo.Create(ctx, ident))

	t.Run("by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, ident.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "alice@example.com", got.EmailValue())
		assert.False(t, got.Verified)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("by email", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, got.ID)
	})

	t.Run("by verification token", func(t *testing.T) {
		got, err := repo.FindByVerificationToken(ctx, "vtok-hash")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, got.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.FindByID(ctx, idx.New().String())
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = repo.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestIdentities_UniqueConstraints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Identities()

	require.NoError(t, repo.Create(ctx, newIdentity("alice", strPtr("alice@example.com"))))

	t.Run("duplicate username", func(t *testing.T) {
		err := repo.Create(ctx, newIdentity("alice", strPtr("other@example.com")))
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, newIdentity("bob", strPtr("alice@example.com")))
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("nil emails do not collide", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newIdentity("carol", nil)))
		require.NoError(t, repo.Create(ctx, newIdentity("dave", nil)))
	})
}

func TestIdentities_Save(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Identities()

	ident := newIdentity("alice", strPtr("alice@example.com"))
	require.NoError(t, repo.Create(ctx, ident))

	ident.Verified = true
	ident.Theme = domain.ThemeDark
	ident.AvatarURL = strPtr("https://cdn.example.com/a.png")
	require.NoError(t, repo.Save(ctx, ident))

	got, err := repo.FindByID(ctx, ident.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, domain.ThemeDark, got.Theme)
	require.NotNil(t, got.AvatarURL)
	assert.Equal(t, "https://cdn.example.com/a.png", *got.AvatarURL)

	t.Run("unknown id", func(t *testing.T) {
		ghost := newIdentity("ghost", nil)
		assert.ErrorIs(t, repo.Save(ctx, ghost), store.ErrNotFound)
	})
}

func TestIdentities_ProviderLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Identities()

	ident := newIdentity("alice", strPtr("alice@example.com"))
	require.NoError(t, repo.Create(ctx, ident))

	link := domain.ProviderLink{Provider: "google", ProviderID: "g-123"}
	require.NoError(t, repo.AddProviderLink(ctx, ident.ID, link))

	t.Run("relinking same provider is idempotent", func(t *testing.T) {
		require.NoError(t, repo.AddProviderLink(ctx, ident.ID, link))

		got, err := repo.FindByID(ctx, ident.ID)
		require.NoError(t, err)
		assert.Len(t, got.ProviderLinks, 1)
	})

	t.Run("lookup by link", func(t *testing.T) {
		got, err := repo.FindByProviderLink(ctx, "google", "g-123")
		require.NoError(t, err)
		assert.Equal(t, ident.ID, got.ID)

		_, err = repo.FindByProviderLink(ctx, "google", "g-999")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("same provider identity owned elsewhere", func(t *testing.T) {
		other := newIdentity("bob", strPtr("bob@example.com"))
		require.NoError(t, repo.Create(ctx, other))

		err := repo.AddProviderLink(ctx, other.ID, link)
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("second provider on same identity", func(t *testing.T) {
		fb := domain.ProviderLink{Provider: "facebook", ProviderID: "f-456"}
		require.NoError(t, repo.AddProviderLink(ctx, ident.ID, fb))

		got, err := repo.FindByID(ctx, ident.ID)
		require.NoError(t, err)
		assert.Len(t, got.ProviderLinks, 2)
	})
}

func TestIdentities_SwapRefreshRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Identities()

	now := time.Now().UTC()
	ident := newIdentity("alice", strPtr("alice@example.com"))
	ident.Verified = true
	ident.AccessToken = strPtr("access-1")
	ident.RefreshRecord = &domain.RefreshRecord{
		TokenHash: "refresh-hash-1",
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, ident))

	next := domain.RefreshRecord{
		TokenHash: "refresh-hash-2",
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}

	require.NoError(t, repo.SwapRefreshRecord(ctx, ident.ID, "refresh-hash-1", next, "access-2"))

	got, err := repo.FindByRefreshToken(ctx, "refresh-hash-2")
	require.NoError(t, err)
	assert.Equal(t, ident.ID, got.ID)
	require.NotNil(t, got.AccessToken)
	assert.Equal(t, "access-2", *got.AccessToken)

	t.Run("stale hash loses the race", func(t *testing.T) {
		err := repo.SwapRefreshRecord(ctx, ident.ID, "refresh-hash-1", next, "access-3")
		assert.ErrorIs(t, err, store.ErrStaleRefresh)
	})

	t.Run("old token no longer resolves", func(t *testing.T) {
		_, err := repo.FindByRefreshToken(ctx, "refresh-hash-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestIdentities_ClearExpiredRefreshRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Identities()

	now := time.Now().UTC()

	expired := newIdentity("alice", strPtr("alice@example.com"))
	expired.RefreshRecord = &domain.RefreshRecord{
		TokenHash: "expired-hash",
		CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, expired))

	live := newIdentity("bob", strPtr("bob@example.com"))
	live.RefreshRecord = &domain.RefreshRecord{
		TokenHash: "live-hash",
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, live))

	cleared, err := repo.ClearExpiredRefreshRecords(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	got, err := repo.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RefreshRecord)
	assert.Nil(t, got.AccessToken)

	got, err = repo.FindByID(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RefreshRecord)
	assert.Equal(t, "live-hash", got.RefreshRecord.TokenHash)
}

func TestStore_WithTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ident := newIdentity("alice", strPtr("alice@example.com"))

	t.Run("rollback on error", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Identities().Create(ctx, ident); err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		_, err = s.Identities().FindByID(ctx, ident.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit on success", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.Identities().Create(ctx, ident)
		})
		require.NoError(t, err)

		got, err := s.Identities().FindByID(ctx, ident.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	})
}
