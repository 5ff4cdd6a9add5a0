package domain

import (
	"errors"
	"strings"
	"time"
)

// Provider tags recorded on identities and social links
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// Identity is the canonical user record, unique per normalized email
type Identity struct {
	ID          string         `json:"id" db:"id"`
	Email       string         `json:"email" db:"email"`
	Provider    string         `json:"provider" db:"provider"`
	Metadata    map[string]any `json:"metadata" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
	LastLoginAt *time.Time     `json:"last_login_at" db:"last_login_at"`
}

// NewIdentity builds an identity for a normalized email
func NewIdentity(email, provider string, metadata map[string]any) (*Identity, error) {
	if email == "" || email != NormalizeEmail(email) {
		return nil, errors.New("identity email must be normalized and non-empty")
	}
	if provider == "" {
		return nil, errors.New("identity provider is required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Identity{
		Email:    email,
		Provider: provider,
		Metadata: metadata,
	}, nil
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalCredential is the password credential owned by one identity
type LocalCredential struct {
	IdentityID   string    `json:"-" db:"identity_id"`
	PasswordHash string    `json:"-" db:"password_hash"`
	PasswordSalt string    `json:"-" db:"password_salt"`
	ChangedAt    time.Time `json:"-" db:"changed_at"`
}

// LegacyCredential is a password record carried over from the previous auth backend.
// EncryptedPassword is a bcrypt hash.
type LegacyCredential struct {
	ID                string `db:"id"`
	Email             string `db:"email"`
	EncryptedPassword string `db:"encrypted_password"`
}
