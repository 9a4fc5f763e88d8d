package store

import (
	"context"
	"errors"

	"github.com/marketa/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrStaleRefresh is returned by SwapRefreshRecord when the expected
	// fingerprint no longer matches, i.e. another rotation won the race.
	ErrStaleRefresh = errors.New("store: stale refresh record")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this.
type Store interface {
	Identities() Identities

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Use it for multi-step operations that
	// must be atomic (e.g., refresh rotation).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Identities is the identity repository. Save is the sole mutation entry
// point for identity fields; provider links and refresh rotation have
// dedicated operations so their uniqueness and atomicity live in one place.
type Identities interface {
	// Create inserts a new identity together with its provider links.
	// Returns ErrAlreadyExists when the email is already taken.
	Create(ctx context.Context, ident domain.Identity) error

	// Save persists all mutable identity fields (username, email, password
	// hash, verification state, session fields, theme, avatar) and bumps
	// updated_at. Provider links are not touched.
	// Returns ErrAlreadyExists when an email update collides.
	Save(ctx context.Context, ident domain.Identity) error

	FindByID(ctx context.Context, id string) (domain.Identity, error)

	// FindByEmail matches only identities with a disclosed email.
	FindByEmail(ctx context.Context, email string) (domain.Identity, error)

	// FindByVerificationToken looks up by the stored token fingerprint.
	FindByVerificationToken(ctx context.Context, tokenHash string) (domain.Identity, error)

	// FindByRefreshToken looks up by the stored refresh fingerprint.
	FindByRefreshToken(ctx context.Context, tokenHash string) (domain.Identity, error)

	// FindByProviderLink resolves the one identity owning the exact
	// (provider, providerID) pair.
	FindByProviderLink(ctx context.Context, provider, providerID string) (domain.Identity, error)

	// AddProviderLink attaches a link to an identity. Idempotent: linking a
	// pair the identity already holds is a no-op.
	AddProviderLink(ctx context.Context, identityID string, link domain.ProviderLink) error

	// SwapRefreshRecord atomically replaces the refresh record and access
	// token, guarded by the currently stored fingerprint. Returns
	// ErrStaleRefresh when oldTokenHash no longer matches.
	SwapRefreshRecord(ctx context.Context, identityID, oldTokenHash string, next domain.RefreshRecord, accessToken string) error

	// ClearExpiredRefreshRecords is housekeeping: drops refresh records (and
	// their access tokens) past expiry. Returns the number of identities touched.
	ClearExpiredRefreshRecords(ctx context.Context) (int64, error)
}
