package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/identity-service/internal/domain"
)

// credentialRepository implements CredentialRepository interface
type credentialRepository struct {
	db DBTX
}

// NewCredentialRepository creates a new local credential repository
func NewCredentialRepository(db DBTX) CredentialRepository {
	return &credentialRepository{db: db}
}

// Upsert writes the credential, replacing any previous one for the identity
func (r *credentialRepository) Upsert(ctx context.Context, credential *domain.LocalCredential) error {
	query := `
		INSERT INTO local_credentials (identity_id, password_hash, password_salt, changed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    password_salt = EXCLUDED.password_salt,
		    changed_at = EXCLUDED.changed_at
	`

	if credential.ChangedAt.IsZero() {
		credential.ChangedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		credential.IdentityID,
		credential.PasswordHash,
		credential.PasswordSalt,
		credential.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert local credential: %w", err)
	}

	return nil
}

// GetByIdentityID retrieves the credential owned by an identity
func (r *credentialRepository) GetByIdentityID(ctx context.Context, identityID string) (*domain.LocalCredential, error) {
	query := `
		SELECT identity_id, password_hash, password_salt, changed_at
		FROM local_credentials
		WHERE identity_id = $1
	`

	credential := &domain.LocalCredential{}
	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&credential.IdentityID,
		&credential.PasswordHash,
		&credential.PasswordSalt,
		&credential.ChangedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("local credential for identity %s not found: %w", identityID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get local credential: %w", err)
	}

	return credential, nil
}
