package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/identity-service/internal/domain"
)

const identityColumns = `id, email, provider, metadata, created_at, updated_at, last_login_at`

// identityRepository implements IdentityRepository interface
type identityRepository struct {
	db DBTX
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db DBTX) IdentityRepository {
	return &identityRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*domain.Identity, error) {
	identity := &domain.Identity{}
	var metadata []byte
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.Provider,
		&metadata,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&lastLoginAt,
	)
	if err != nil {
		return nil, err
	}

	identity.Metadata, err = decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	if lastLoginAt.Valid {
		identity.LastLoginAt = &lastLoginAt.Time
	}

	return identity, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (map[string]any, error) {
	metadata := map[string]any{}
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

func prepareIdentity(identity *domain.Identity) {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}

	now := time.Now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = now
	}
}

// Create creates a new identity in the database
func (r *identityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	query := `
		INSERT INTO identities (id, email, provider, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	prepareIdentity(identity)

	metadata, err := encodeMetadata(identity.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.Provider,
		metadata,
		identity.CreatedAt,
		identity.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "identities_email_unique") {
			return fmt.Errorf("identity with email %s already exists: %w", identity.Email, ErrDuplicateEmail)
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// FindOrCreate inserts the identity or returns the row that already owns its email
func (r *identityRepository) FindOrCreate(ctx context.Context, identity *domain.Identity) (*domain.Identity, bool, error) {
	query := `
		INSERT INTO identities (id, email, provider, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
		RETURNING ` + identityColumns

	prepareIdentity(identity)

	metadata, err := encodeMetadata(identity.Metadata)
	if err != nil {
		return nil, false, err
	}

	stored, err := scanIdentity(r.db.QueryRowContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.Provider,
		metadata,
		identity.CreatedAt,
		identity.UpdatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to find or create identity: %w", err)
	}

	existing, err := r.GetByEmail(ctx, identity.Email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read conflicting identity: %w", err)
	}

	return existing, false, nil
}

// GetByEmail retrieves an identity by normalized email
func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity with email %s not found: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity by email: %w", err)
	}

	return identity, nil
}

// GetByID retrieves an identity by ID
func (r *identityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity by id: %w", err)
	}

	return identity, nil
}

// UpdateMetadata replaces the metadata map of an identity
func (r *identityRepository) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (*domain.Identity, error) {
	query := `
		UPDATE identities
		SET metadata = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + identityColumns

	data, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, id, data))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update identity metadata: %w", err)
	}

	return identity, nil
}

// UpdateLastLogin updates the last login timestamp for an identity
func (r *identityRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `
		UPDATE identities
		SET last_login_at = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("identity with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}
