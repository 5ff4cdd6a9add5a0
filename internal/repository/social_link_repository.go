package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/identity-service/internal/domain"
)

const socialLinkColumns = `id, provider, external_id, email, metadata, identity_id, created_at, linked_at`

// socialLinkRepository implements SocialLinkRepository interface
type socialLinkRepository struct {
	db DBTX
}

// NewSocialLinkRepository creates a new social link repository
func NewSocialLinkRepository(db DBTX) SocialLinkRepository {
	return &socialLinkRepository{db: db}
}

func scanSocialLink(row rowScanner) (*domain.SocialLink, error) {
	link := &domain.SocialLink{}
	var metadata []byte
	var identityID sql.NullString
	var linkedAt sql.NullTime

	err := row.Scan(
		&link.ID,
		&link.Provider,
		&link.ExternalID,
		&link.Email,
		&metadata,
		&identityID,
		&link.CreatedAt,
		&linkedAt,
	)
	if err != nil {
		return nil, err
	}

	link.Metadata, err = decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if identityID.Valid {
		link.IdentityID = &identityID.String
	}
	if linkedAt.Valid {
		link.LinkedAt = &linkedAt.Time
	}

	return link, nil
}

// GetByProvider retrieves a link by provider and external account id
func (r *socialLinkRepository) GetByProvider(ctx context.Context, provider, externalID string) (*domain.SocialLink, error) {
	query := `SELECT ` + socialLinkColumns + ` FROM social_links WHERE provider = $1 AND external_id = $2`

	link, err := scanSocialLink(r.db.QueryRowContext(ctx, query, provider, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("social link %s/%s not found: %w", provider, externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get social link: %w", err)
	}

	return link, nil
}

// FindOrCreate inserts the link or returns the row already stored for (provider, external_id)
func (r *socialLinkRepository) FindOrCreate(ctx context.Context, link *domain.SocialLink) (*domain.SocialLink, bool, error) {
	query := `
		INSERT INTO social_links (id, provider, external_id, email, metadata, identity_id, created_at, linked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, external_id) DO NOTHING
		RETURNING ` + socialLinkColumns

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	if link.IdentityID != nil && link.LinkedAt == nil {
		linkedAt := link.CreatedAt
		link.LinkedAt = &linkedAt
	}

	metadata, err := encodeMetadata(link.Metadata)
	if err != nil {
		return nil, false, err
	}

	stored, err := scanSocialLink(r.db.QueryRowContext(ctx, query,
		link.ID,
		link.Provider,
		link.ExternalID,
		link.Email,
		metadata,
		link.IdentityID,
		link.CreatedAt,
		link.LinkedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to find or create social link: %w", err)
	}

	existing, err := r.GetByProvider(ctx, link.Provider, link.ExternalID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read conflicting social link: %w", err)
	}

	return existing, false, nil
}

// Link sets identity_id on an orphaned link. A link that is already attached is
// returned as stored so the caller can follow the winner.
func (r *socialLinkRepository) Link(ctx context.Context, linkID, identityID string) (*domain.SocialLink, error) {
	query := `
		UPDATE social_links
		SET identity_id = $2, linked_at = NOW()
		WHERE id = $1 AND identity_id IS NULL
		RETURNING ` + socialLinkColumns

	link, err := scanSocialLink(r.db.QueryRowContext(ctx, query, linkID, identityID))
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to link social account: %w", err)
	}

	current, err := scanSocialLink(r.db.QueryRowContext(ctx,
		`SELECT `+socialLinkColumns+` FROM social_links WHERE id = $1`, linkID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("social link %s not found: %w", linkID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read social link: %w", err)
	}

	return current, nil
}

// GetByIdentityID lists the provider links attached to an identity
func (r *socialLinkRepository) GetByIdentityID(ctx context.Context, identityID string) ([]*domain.SocialLink, error) {
	query := `SELECT ` + socialLinkColumns + ` FROM social_links WHERE identity_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list social links: %w", err)
	}
	defer rows.Close()

	var links []*domain.SocialLink
	for rows.Next() {
		link, err := scanSocialLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan social link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating social links: %w", err)
	}

	return links, nil
}
