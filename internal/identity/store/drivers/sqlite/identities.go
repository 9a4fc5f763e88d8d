package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/marketa/identity/internal/identity/domain"
	"github.com/marketa/identity/internal/identity/store"
)

type identitiesRepo struct {
	db dbtx
}

const identityColumns = `id, username, email, password_hash, verified,
	verification_token_hash, access_token,
	refresh_token_hash, refresh_created_at, refresh_expires_at,
	theme, avatar_url, created_at, updated_at`

func (r *identitiesRepo) Create(ctx context.Context, ident domain.Identity) error {
	now := time.Now().UTC()

	var refreshHash sql.NullString
	var refreshCreated, refreshExpires sql.NullTime
	if ident.RefreshRecord != nil {
		refreshHash = sql.NullString{String: ident.RefreshRecord.TokenHash, Valid: true}
		refreshCreated = sql.NullTime{Time: ident.RefreshRecord.CreatedAt, Valid: true}
		refreshExpires = sql.NullTime{Time: ident.RefreshRecord.ExpiresAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (
			id, username, email, password_hash, verified,
			verification_token_hash, access_token,
			refresh_token_hash, refresh_created_at, refresh_expires_at,
			theme, avatar_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ident.ID,
		ident.Username,
		mapOptionalString(ident.Email),
		ident.PasswordHash,
		ident.Verified,
		mapOptionalString(ident.VerificationTokenHash),
		mapOptionalString(ident.AccessToken),
		refreshHash,
		refreshCreated,
		refreshExpires,
		string(ident.Theme),
		mapOptionalString(ident.AvatarURL),
		now,
		now,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	for _, link := range ident.ProviderLinks {
		if err := r.AddProviderLink(ctx, ident.ID, link); err != nil {
			return err
		}
	}

	return nil
}

func (r *identitiesRepo) Save(ctx context.Context, ident domain.Identity) error {
	var refreshHash sql.NullString
	var refreshCreated, refreshExpires sql.NullTime
	if ident.RefreshRecord != nil {
		refreshHash = sql.NullString{String: ident.RefreshRecord.TokenHash, Valid: true}
		refreshCreated = sql.NullTime{Time: ident.RefreshRecord.CreatedAt, Valid: true}
		refreshExpires = sql.NullTime{Time: ident.RefreshRecord.ExpiresAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE identities SET
			username = ?,
			email = ?,
			password_hash = ?,
			verified = ?,
			verification_token_hash = ?,
			access_token = ?,
			refresh_token_hash = ?,
			refresh_created_at = ?,
			refresh_expires_at = ?,
			theme = ?,
			avatar_url = ?,
			updated_at = ?
		WHERE id = ?`,
		ident.Username,
		mapOptionalString(ident.Email),
		ident.PasswordHash,
		ident.Verified,
		mapOptionalString(ident.VerificationTokenHash),
		mapOptionalString(ident.AccessToken),
		refreshHash,
		refreshCreated,
		refreshExpires,
		string(ident.Theme),
		mapOptionalString(ident.AvatarURL),
		time.Now().UTC(),
		ident.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *identitiesRepo) FindByID(ctx context.Context, id string) (domain.Identity, error) {
	return r.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
}

func (r *identitiesRepo) FindByEmail(ctx context.Context, email string) (domain.Identity, error) {
	return r.findOne(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email IS NOT NULL AND email = ?`,
		email)
}

func (r *identitiesRepo) FindByVerificationToken(ctx context.Context, tokenHash string) (domain.Identity, error) {
	return r.findOne(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE verification_token_hash = ?`,
		tokenHash)
}

func (r *identitiesRepo) FindByRefreshToken(ctx context.Context, tokenHash string) (domain.Identity, error) {
	return r.findOne(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE refresh_token_hash = ?`,
		tokenHash)
}

func (r *identitiesRepo) FindByProviderLink(ctx context.Context, provider, providerID string) (domain.Identity, error) {
	return r.findOne(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE id = (
			SELECT identity_id FROM provider_links
			WHERE provider = ? AND provider_id = ?
		)`,
		provider, providerID)
}

func (r *identitiesRepo) AddProviderLink(ctx context.Context, identityID string, link domain.ProviderLink) error {
	// The (identity_id, provider) conflict makes re-linking idempotent; a
	// collision on (provider, provider_id) owned by a different identity
	// still fails the unique index.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provider_links (identity_id, provider, provider_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity_id, provider) DO NOTHING`,
		identityID, link.Provider, link.ProviderID, time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *identitiesRepo) SwapRefreshRecord(
	ctx context.Context,
	identityID, oldTokenHash string,
	next domain.RefreshRecord,
	accessToken string,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities SET
			access_token = ?,
			refresh_token_hash = ?,
			refresh_created_at = ?,
			refresh_expires_at = ?,
			updated_at = ?
		WHERE id = ? AND refresh_token_hash = ?`,
		accessToken,
		next.TokenHash,
		next.CreatedAt,
		next.ExpiresAt,
		time.Now().UTC(),
		identityID,
		oldTokenHash,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrStaleRefresh
	}
	return nil
}

func (r *identitiesRepo) ClearExpiredRefreshRecords(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities SET
			access_token = NULL,
			refresh_token_hash = NULL,
			refresh_created_at = NULL,
			refresh_expires_at = NULL,
			updated_at = ?
		WHERE refresh_expires_at IS NOT NULL AND refresh_expires_at < ?`,
		time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *identitiesRepo) findOne(ctx context.Context, query string, args ...any) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, query, args...)

	ident, err := scanIdentity(row)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}

	links, err := r.loadProviderLinks(ctx, ident.ID)
	if err != nil {
		return domain.Identity{}, err
	}
	ident.ProviderLinks = links

	return ident, nil
}

func (r *identitiesRepo) loadProviderLinks(ctx context.Context, identityID string) ([]domain.ProviderLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT provider, provider_id FROM provider_links
		WHERE identity_id = ?
		ORDER BY created_at, provider`,
		identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.ProviderLink
	for rows.Next() {
		var l domain.ProviderLink
		if err := rows.Scan(&l.Provider, &l.ProviderID); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func scanIdentity(row *sql.Row) (domain.Identity, error) {
	var ident domain.Identity
	var email, verificationHash, accessToken, refreshHash, avatarURL sql.NullString
	var refreshCreated, refreshExpires sql.NullTime
	var theme string

	err := row.Scan(
		&ident.ID,
		&ident.Username,
		&email,
		&ident.PasswordHash,
		&ident.Verified,
		&verificationHash,
		&accessToken,
		&refreshHash,
		&refreshCreated,
		&refreshExpires,
		&theme,
		&avatarURL,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		return domain.Identity{}, err
	}

	ident.Email = mapNullString(email)
	ident.VerificationTokenHash = mapNullString(verificationHash)
	ident.AccessToken = mapNullString(accessToken)
	ident.Theme = domain.Theme(theme)
	ident.AvatarURL = mapNullString(avatarURL)

	if refreshHash.Valid {
		ident.RefreshRecord = &domain.RefreshRecord{
			TokenHash: refreshHash.String,
			CreatedAt: refreshCreated.Time,
			ExpiresAt: refreshExpires.Time,
		}
	}

	return ident, nil
}
