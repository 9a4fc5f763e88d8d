package domain

// TokenPair is what a successful login, OAuth resolution, or refresh
// rotation hands back: the short-lived access token (JWT) and the opaque
// refresh token. Both are empty for unverified identities.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Issued reports whether any credentials were actually minted.
func (p TokenPair) Issued() bool {
	return p.AccessToken != "" || p.RefreshToken != ""
}
