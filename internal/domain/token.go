package domain

import "time"

// AccessClaims are the verified contents of an access token
type AccessClaims struct {
	IdentityID string
	SessionID  string
	TokenID    string
	Roles      []string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// TokenPair represents a freshly issued access and refresh token
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresIn  time.Duration
	RefreshExpiresAt time.Time
}

// IsExpired checks if the token is expired
func (c AccessClaims) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
