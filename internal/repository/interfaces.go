package repository

import (
	"context"

	"github.com/prperemyshlev/identity-service/internal/domain"
)

// IdentityRepository defines methods for canonical identity records
type IdentityRepository interface {
	// Create inserts a new identity; a taken email yields ErrDuplicateEmail.
	Create(ctx context.Context, identity *domain.Identity) error
	// FindOrCreate inserts the identity unless its email exists and returns the
	// stored row. created is false when another writer got there first.
	FindOrCreate(ctx context.Context, identity *domain.Identity) (stored *domain.Identity, created bool, err error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (*domain.Identity, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// CredentialRepository defines methods for local password credentials
type CredentialRepository interface {
	Upsert(ctx context.Context, credential *domain.LocalCredential) error
	GetByIdentityID(ctx context.Context, identityID string) (*domain.LocalCredential, error)
}

// SocialLinkRepository defines methods for provider account links
type SocialLinkRepository interface {
	GetByProvider(ctx context.Context, provider, externalID string) (*domain.SocialLink, error)
	// FindOrCreate inserts the link unless (provider, external_id) exists and
	// returns the surviving row.
	FindOrCreate(ctx context.Context, link *domain.SocialLink) (stored *domain.SocialLink, created bool, err error)
	// Link attaches an orphaned link to identityID. If the link was already
	// attached, the current row is returned unchanged.
	Link(ctx context.Context, linkID, identityID string) (*domain.SocialLink, error)
	GetByIdentityID(ctx context.Context, identityID string) ([]*domain.SocialLink, error)
}

// RoleRepository defines methods for role assignments
type RoleRepository interface {
	// Assign grants a role by name. assigned is false when the identity already had it.
	Assign(ctx context.Context, identityID, roleName string) (assigned bool, err error)
	ListByIdentity(ctx context.Context, identityID string) ([]string, error)
}

// SessionRepository defines methods for refresh-token sessions
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByIdentity(ctx context.Context, identityID string) ([]*domain.Session, error)
	// Invalidate clears the validity flag; ErrNotFound if the session is absent or already invalid.
	Invalidate(ctx context.Context, id string) error
	InvalidateAllForIdentity(ctx context.Context, identityID string) ([]string, error)
	DeleteExpired(ctx context.Context) error
}

// LegacyCredentialRepository reads password records from the previous auth backend
type LegacyCredentialRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.LegacyCredential, error)
}

// Transactor runs fn against repositories bound to a single transaction.
// fn's error rolls the transaction back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error
}
