package domain

import (
	"errors"
	"time"
)

// Defaults applied to client metadata the caller did not send
const (
	UnknownUserAgent = "unknown"
	UnknownDevice    = "unknown"
	DefaultIPAddress = "127.0.0.1"
)

// ClientMetadata describes the client a session was issued to
type ClientMetadata struct {
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
	Device    string `json:"device"`
}

// WithDefaults fills empty fields with placeholder values
func (m ClientMetadata) WithDefaults() ClientMetadata {
	if m.UserAgent == "" {
		m.UserAgent = UnknownUserAgent
	}
	if m.IPAddress == "" {
		m.IPAddress = DefaultIPAddress
	}
	if m.Device == "" {
		m.Device = UnknownDevice
	}
	return m
}

// Session is one refresh-token lineage. Only the digest of the refresh token is kept.
type Session struct {
	ID               string         `json:"id" db:"id"`
	IdentityID       string         `json:"identity_id" db:"identity_id"`
	RefreshTokenHash string         `json:"-" db:"refresh_token_hash"`
	Client           ClientMetadata `json:"client"`
	Valid            bool           `json:"valid" db:"valid"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at" db:"expires_at"`
	RevokedAt        *time.Time     `json:"revoked_at" db:"revoked_at"`
}

// NewSession builds a valid session record
func NewSession(id, identityID, refreshTokenHash string, client ClientMetadata, createdAt, expiresAt time.Time) (*Session, error) {
	if identityID == "" {
		return nil, errors.New("session identity id is required")
	}
	if refreshTokenHash == "" {
		return nil, errors.New("session refresh token hash is required")
	}
	if !expiresAt.After(createdAt) {
		return nil, errors.New("session must expire after it is created")
	}
	return &Session{
		ID:               id,
		IdentityID:       identityID,
		RefreshTokenHash: refreshTokenHash,
		Client:           client.WithDefaults(),
		Valid:            true,
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
	}, nil
}

// IsExpired checks if the session is past its expiry
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt checks expiry against t
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Usable reports whether the session may still be refreshed at t
func (s *Session) Usable(t time.Time) bool {
	return s.Valid && !s.IsExpiredAt(t)
}
