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

const sessionColumns = `id, identity_id, refresh_token_hash, user_agent, ip_address, device, valid, created_at, expires_at, revoked_at`

// sessionRepository implements SessionRepository interface
type sessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepository{db: db}
}

func scanSession(row rowScanner) (*domain.Session, error) {
	session := &domain.Session{}
	var revokedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.RefreshTokenHash,
		&session.Client.UserAgent,
		&session.Client.IPAddress,
		&session.Client.Device,
		&session.Valid,
		&session.CreatedAt,
		&session.ExpiresAt,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	if revokedAt.Valid {
		session.RevokedAt = &revokedAt.Time
	}

	return session, nil
}

// Create stores a new session
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, identity_id, refresh_token_hash, user_agent, ip_address, device, valid, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.Client = session.Client.WithDefaults()

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.IdentityID,
		session.RefreshTokenHash,
		session.Client.UserAgent,
		session.Client.IPAddress,
		session.Client.Device,
		session.Valid,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err, "sessions_refresh_token_hash_key") {
			return fmt.Errorf("session token collision: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a session by the digest of its refresh token
func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}

	return session, nil
}

// GetByID retrieves a session by ID
func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	return session, nil
}

// ListByIdentity returns the sessions of an identity, newest first
func (r *sessionRepository) ListByIdentity(ctx context.Context, identityID string) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE identity_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Invalidate marks a valid session as revoked
func (r *sessionRepository) Invalidate(ctx context.Context, id string) error {
	query := `
		UPDATE sessions
		SET valid = false, revoked_at = NOW()
		WHERE id = $1 AND valid = true
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("valid session %s not found: %w", id, ErrNotFound)
	}

	return nil
}

// InvalidateAllForIdentity revokes every valid session of an identity and
// returns the ids it revoked
func (r *sessionRepository) InvalidateAllForIdentity(ctx context.Context, identityID string) ([]string, error) {
	query := `
		UPDATE sessions
		SET valid = false, revoked_at = NOW()
		WHERE identity_id = $1 AND valid = true
		RETURNING id
	`

	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate revoked sessions: %w", err)
	}

	return ids, nil
}

// DeleteExpired removes sessions past their expiry
func (r *sessionRepository) DeleteExpired(ctx context.Context) error {
	query := `DELETE FROM sessions WHERE expires_at < NOW()`

	_, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return nil
}
