package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prperemyshlev/identity-service/internal/domain"
)

// legacyCredentialRepository implements LegacyCredentialRepository interface
type legacyCredentialRepository struct {
	db DBTX
}

// NewLegacyCredentialRepository creates a read-only legacy credential repository
func NewLegacyCredentialRepository(db DBTX) LegacyCredentialRepository {
	return &legacyCredentialRepository{db: db}
}

// GetByEmail retrieves the legacy record for an email. Legacy emails were stored
// unnormalized, so the comparison normalizes the column.
func (r *legacyCredentialRepository) GetByEmail(ctx context.Context, email string) (*domain.LegacyCredential, error) {
	query := `
		SELECT id, email, encrypted_password
		FROM legacy_credentials
		WHERE LOWER(BTRIM(email)) = $1
		LIMIT 1
	`

	legacy := &domain.LegacyCredential{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&legacy.ID,
		&legacy.Email,
		&legacy.EncryptedPassword,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("legacy credential for %s not found: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get legacy credential: %w", err)
	}

	return legacy, nil
}
