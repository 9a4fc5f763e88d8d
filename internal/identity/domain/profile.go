package domain

// Profile is an external provider's view of a user. Optional fields carry
// explicit presence; providers routinely withhold email and avatar.
type Profile struct {
	ProviderID  string
	DisplayName string
	Email       *string
	AvatarURL   *string
}

// HasEmail reports whether the provider disclosed a non-empty email.
func (p Profile) HasEmail() bool {
	return p.Email != nil && *p.Email != ""
}

// HasProviderID reports whether the provider account id is known.
func (p Profile) HasProviderID() bool {
	return p.ProviderID != ""
}
