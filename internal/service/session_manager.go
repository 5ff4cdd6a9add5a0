package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/repository"
	"github.com/prperemyshlev/identity-service/internal/utils"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// DefaultRefreshTokenExpiry is the session lifetime when none is configured
const DefaultRefreshTokenExpiry = 30 * 24 * time.Hour

// IssuedSession is the outcome of creating or rotating a session
type IssuedSession struct {
	Session *domain.Session
	Tokens  domain.TokenPair
	Roles   []string
}

// SessionManager issues, rotates and revokes refresh-token sessions
type SessionManager struct {
	repos         *repository.Repositories
	jwtManager    *utils.JWTManager
	refreshExpiry time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewSessionManager creates a new session manager
func NewSessionManager(
	repos *repository.Repositories,
	jwtManager *utils.JWTManager,
	refreshExpiry time.Duration,
	logger *zap.Logger,
) *SessionManager {
	if refreshExpiry <= 0 {
		refreshExpiry = DefaultRefreshTokenExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		repos:         repos,
		jwtManager:    jwtManager,
		refreshExpiry: refreshExpiry,
		logger:        logger,
		now:           time.Now,
	}
}

// RefreshExpiry returns the session lifetime
func (m *SessionManager) RefreshExpiry() time.Duration {
	return m.refreshExpiry
}

// CreateSession issues a fresh token pair and records a new valid session.
// Only the digest of the refresh token is stored.
func (m *SessionManager) CreateSession(ctx context.Context, identityID string, client domain.ClientMetadata) (*IssuedSession, error) {
	return m.createSession(ctx, m.repos, identityID, client)
}

func (m *SessionManager) createSession(ctx context.Context, repos *repository.Repositories, identityID string, client domain.ClientMetadata) (*IssuedSession, error) {
	roles, err := repos.Role.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, storeError("list roles", err)
	}

	sessionID := uuid.New().String()

	accessToken, err := m.jwtManager.GenerateAccessToken(identityID, sessionID, roles)
	if err != nil {
		return nil, oops.Wrapf(err, "generate access token")
	}

	refreshToken, err := utils.GenerateRefreshToken()
	if err != nil {
		return nil, oops.Wrapf(err, "generate refresh token")
	}

	now := m.now()
	session, err := domain.NewSession(sessionID, identityID, utils.DigestToken(refreshToken), client, now, now.Add(m.refreshExpiry))
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	if err := repos.Session.Create(ctx, session); err != nil {
		return nil, storeError("create session", err)
	}

	return &IssuedSession{
		Session: session,
		Roles:   roles,
		Tokens: domain.TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			SessionID:        sessionID,
			AccessExpiresIn:  m.jwtManager.GetAccessTokenExpiry(),
			RefreshExpiresAt: session.ExpiresAt,
		},
	}, nil
}

// Refresh rotates a session: the presented refresh token is consumed and a new
// session is issued in the same transaction, so a failed rotation leaves the
// presented token usable. Presenting a consumed token fails with SESSION_INVALID.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string, client domain.ClientMetadata) (*IssuedSession, error) {
	if refreshToken == "" {
		return nil, validationError("refresh token is required")
	}

	session, err := m.repos.Session.GetByTokenHash(ctx, utils.DigestToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, sessionInvalidError()
		}
		return nil, storeError("get session", err)
	}

	if !session.Usable(m.now()) {
		return nil, sessionInvalidError()
	}

	if client == (domain.ClientMetadata{}) {
		client = session.Client
	}

	var issued *IssuedSession
	err = m.repos.Tx.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		if err := tx.Session.Invalidate(ctx, session.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				m.logger.Warn("refresh token reused during rotation",
					zap.String("session_id", session.ID),
					zap.String("identity_id", session.IdentityID),
				)
				return sessionInvalidError()
			}
			return storeError("invalidate session", err)
		}

		var err error
		issued, err = m.createSession(ctx, tx, session.IdentityID, client)
		return err
	})
	if err != nil {
		if ErrorCode(err) == "" {
			return nil, storeError("rotate session", err)
		}
		return nil, err
	}

	return issued, nil
}

// Revoke invalidates one session owned by identityID. Revoking an already
// revoked session is a no-op.
func (m *SessionManager) Revoke(ctx context.Context, identityID, sessionID string) error {
	session, err := m.repos.Session.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return sessionInvalidError()
		}
		return storeError("get session", err)
	}

	if session.IdentityID != identityID {
		return sessionInvalidError()
	}

	if err := m.repos.Session.Invalidate(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeError("invalidate session", err)
	}

	return nil
}

// List returns the sessions of an identity, newest first
func (m *SessionManager) List(ctx context.Context, identityID string) ([]*domain.Session, error) {
	sessions, err := m.repos.Session.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, storeError("list sessions", err)
	}
	return sessions, nil
}

// PurgeExpired deletes sessions whose refresh token can no longer be used
func (m *SessionManager) PurgeExpired(ctx context.Context) error {
	if err := m.repos.Session.DeleteExpired(ctx); err != nil {
		return storeError("delete expired sessions", err)
	}
	return nil
}

// RevokeAll invalidates every valid session of an identity and returns their ids
func (m *SessionManager) RevokeAll(ctx context.Context, identityID string) ([]string, error) {
	ids, err := m.repos.Session.InvalidateAllForIdentity(ctx, identityID)
	if err != nil {
		return nil, storeError("invalidate sessions", err)
	}
	return ids, nil
}
