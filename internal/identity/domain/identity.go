package domain

import "time"

// Theme is the user's UI preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Identity is the central entity: one local account, optionally linked to
// external OAuth providers.
//
// Email is nullable: provider-only accounts may never disclose one. When
// present it is unique across identities.
type Identity struct {
	ID           string
	Username     string
	Email        *string
	PasswordHash string // argon2 encoded

	// Verified gates token issuance: unverified identities never hold an
	// access token or refresh record.
	Verified bool
	// VerificationTokenHash is the fingerprint of the outstanding
	// verification token, present only while unverified.
	VerificationTokenHash *string

	// AccessToken is the last-issued signed token, if any.
	AccessToken *string
	// RefreshRecord is the single live refresh token. Replaced wholesale on
	// each rotation, never appended.
	RefreshRecord *RefreshRecord

	ProviderLinks []ProviderLink

	Theme     Theme
	AvatarURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshRecord models the stored refresh token. TokenHash is a
// deterministic fingerprint (base64url SHA-256) of the opaque value handed
// to the client.
type RefreshRecord struct {
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r RefreshRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ProviderLink associates a local identity with an external provider
// account. An identity holds at most one link per provider.
type ProviderLink struct {
	Provider   string
	ProviderID string
}

// HasProviderLink reports whether the identity already carries a link for
// the given provider.
func (i *Identity) HasProviderLink(provider string) bool {
	for _, l := range i.ProviderLinks {
		if l.Provider == provider {
			return true
		}
	}
	return false
}

// EmailValue returns the email or "" when undisclosed.
func (i *Identity) EmailValue() string {
	if i.Email == nil {
		return ""
	}
	return *i.Email
}
