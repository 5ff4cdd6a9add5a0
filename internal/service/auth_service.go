package service

import (
	"context"
	"errors"
	"time"

	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/dto"
	"github.com/prperemyshlev/identity-service/internal/repository"
	"github.com/prperemyshlev/identity-service/internal/utils"
	"github.com/prperemyshlev/identity-service/pkg/observability"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Authentication methods recorded on auth.attempts
const (
	MethodRegister = "register"
	MethodPassword = "password"
	MethodRefresh  = "refresh"
)

// authService implements AuthService interface
type authService struct {
	resolver   *Resolver
	sessions   *SessionManager
	repos      *repository.Repositories
	jwtManager *utils.JWTManager
	denyList   TokenDenyList
	metrics    *observability.AuthMetrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	resolver *Resolver,
	sessions *SessionManager,
	repos *repository.Repositories,
	jwtManager *utils.JWTManager,
	denyList TokenDenyList,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{
		resolver:   resolver,
		sessions:   sessions,
		repos:      repos,
		jwtManager: jwtManager,
		denyList:   denyList,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Register registers a new local identity and opens its first session
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	metadata := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.Name != "" {
		metadata["name"] = req.Name
	}

	identity, err := s.resolver.Register(ctx, req.Email, req.Password, metadata)
	if err != nil {
		s.recordFailure(ctx, MethodRegister, err)
		return nil, err
	}

	return s.openSession(ctx, MethodRegister, identity, client)
}

// Login authenticates with email and password
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	identity, err := s.resolver.Login(ctx, req.Email, req.Password)
	if err != nil {
		s.recordFailure(ctx, MethodPassword, err)
		return nil, err
	}

	return s.openSession(ctx, MethodPassword, identity, client)
}

// SocialLogin authenticates with a third-party ID token
func (s *authService) SocialLogin(ctx context.Context, providerName string, req *dto.SocialLoginRequest, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	identity, err := s.resolver.SocialSignIn(ctx, providerName, req.Token())
	if err != nil {
		s.recordFailure(ctx, providerName, err)
		return nil, err
	}

	return s.openSession(ctx, providerName, identity, client)
}

// RefreshToken rotates a refresh token into a new session
func (s *authService) RefreshToken(ctx context.Context, refreshToken string, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	issued, err := s.sessions.Refresh(ctx, refreshToken, client)
	if err != nil {
		s.recordFailure(ctx, MethodRefresh, err)
		return nil, err
	}

	identity, err := s.repos.Identity.GetByID(ctx, issued.Session.IdentityID)
	if err != nil {
		err = storeError("get identity", err)
		s.recordFailure(ctx, MethodRefresh, err)
		return nil, err
	}

	s.metrics.RecordAttempt(ctx, MethodRefresh, observability.OutcomeSuccess)
	return buildAuthResponse(identity, issued), nil
}

// Logout revokes the caller's session, or all sessions when all is set. The
// presented access token and every access token of a revoked session are
// denied until they expire.
func (s *authService) Logout(ctx context.Context, claims *domain.AccessClaims, all bool) error {
	if claims == nil {
		return unauthorizedError("missing access token")
	}

	var revoked []string
	if all {
		ids, err := s.sessions.RevokeAll(ctx, claims.IdentityID)
		if err != nil {
			return err
		}
		revoked = ids
		s.logger.Info("all sessions revoked",
			zap.String("identity_id", claims.IdentityID),
			zap.Int("sessions", len(ids)),
		)
	} else if claims.SessionID != "" {
		if err := s.sessions.Revoke(ctx, claims.IdentityID, claims.SessionID); err != nil {
			return err
		}
		revoked = []string{claims.SessionID}
	}

	if err := s.denyList.Deny(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.now())); err != nil {
		s.logger.Warn("failed to deny access token on logout",
			zap.String("identity_id", claims.IdentityID),
			zap.Error(err),
		)
	}
	if err := s.denyList.DenySessions(ctx, revoked, s.jwtManager.GetAccessTokenExpiry()); err != nil {
		s.logger.Warn("failed to deny session tokens on logout",
			zap.String("identity_id", claims.IdentityID),
			zap.Error(err),
		)
	}

	return nil
}

// GetMe describes the authenticated caller
func (s *authService) GetMe(ctx context.Context, claims *domain.AccessClaims) (*dto.MeResponse, error) {
	identity, err := s.repos.Identity.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorizedError("identity no longer exists")
		}
		return nil, storeError("get identity", err)
	}

	roles, err := s.repos.Role.ListByIdentity(ctx, identity.ID)
	if err != nil {
		return nil, storeError("list roles", err)
	}

	return &dto.MeResponse{
		Identity:    toIdentityResponse(identity),
		Roles:       roles,
		Permissions: []string{},
		SessionID:   claims.SessionID,
	}, nil
}

// ListSessions describes every session of the caller, flagging the one the token belongs to
func (s *authService) ListSessions(ctx context.Context, claims *domain.AccessClaims) (*dto.SessionsResponse, error) {
	sessions, err := s.sessions.List(ctx, claims.IdentityID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, dto.SessionResponse{
			ID:        session.ID,
			UserAgent: session.Client.UserAgent,
			IPAddress: session.Client.IPAddress,
			Device:    session.Client.Device,
			Valid:     session.Valid,
			Current:   session.ID == claims.SessionID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			RevokedAt: session.RevokedAt,
		})
	}

	return &dto.SessionsResponse{Sessions: out}, nil
}

// UpdateMetadata replaces the identity's metadata map
func (s *authService) UpdateMetadata(ctx context.Context, identityID string, metadata map[string]any) (*dto.IdentityResponse, error) {
	if metadata == nil {
		return nil, validationError("metadata is required")
	}

	identity, err := s.repos.Identity.UpdateMetadata(ctx, identityID, utils.SanitizeMetadata(metadata))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("identity_id", identityID).Errorf("identity not found")
		}
		return nil, storeError("update metadata", err)
	}

	response := toIdentityResponse(identity)
	return &response, nil
}

// AssignRole grants a catalogue role to an identity. Granting a held role is a no-op.
func (s *authService) AssignRole(ctx context.Context, identityID, role string) (*dto.AssignRoleResponse, error) {
	if role == "" {
		return nil, validationError("role is required")
	}

	if _, err := s.repos.Identity.GetByID(ctx, identityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("identity_id", identityID).Errorf("identity not found")
		}
		return nil, storeError("get identity", err)
	}

	assigned, err := s.repos.Role.Assign(ctx, identityID, role)
	if err != nil {
		if errors.Is(err, repository.ErrRoleNotFound) {
			return nil, validationError("unknown role %q", role)
		}
		return nil, storeError("assign role", err)
	}

	if assigned {
		s.logger.Info("role assigned",
			zap.String("identity_id", identityID),
			zap.String("role", role),
		)
	}

	return &dto.AssignRoleResponse{IdentityID: identityID, Role: role, Assigned: assigned}, nil
}

// ValidateToken verifies an access token's signature and expiry, then checks the deny list
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AccessClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, unauthorizedError("invalid or expired token")
	}

	denied, err := s.denyList.IsDenied(ctx, claims.TokenID, claims.SessionID)
	if err != nil {
		return nil, storeError("check token deny list", err)
	}
	if denied {
		return nil, unauthorizedError("token has been revoked")
	}

	return claims, nil
}

// RefreshTokenTTL returns the refresh token lifetime
func (s *authService) RefreshTokenTTL() time.Duration {
	return s.sessions.RefreshExpiry()
}

// openSession creates a session for a resolved identity and assembles the response
func (s *authService) openSession(ctx context.Context, method string, identity *domain.Identity, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	issued, err := s.sessions.CreateSession(ctx, identity.ID, client)
	if err != nil {
		s.recordFailure(ctx, method, err)
		return nil, err
	}

	if err := s.repos.Identity.UpdateLastLogin(ctx, identity.ID); err != nil {
		s.logger.Warn("failed to update last login",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	s.metrics.RecordAttempt(ctx, method, observability.OutcomeSuccess)
	s.logger.Info("session opened",
		zap.String("identity_id", identity.ID),
		zap.String("session_id", issued.Tokens.SessionID),
		zap.String("method", method),
	)

	return buildAuthResponse(identity, issued), nil
}

func (s *authService) recordFailure(ctx context.Context, method string, err error) {
	s.metrics.RecordAttempt(ctx, method, observability.OutcomeFailure)

	code := ErrorCode(err)
	if code == "" || code == CodeStoreUnavailable {
		s.logger.Error("authentication failed",
			zap.String("method", method),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("authentication rejected",
		zap.String("method", method),
		zap.String("code", code),
	)
}
