package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/dto"
)

// AuthService defines methods for authentication operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest, client domain.ClientMetadata) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest, client domain.ClientMetadata) (*dto.AuthResponse, error)
	SocialLogin(ctx context.Context, providerName string, req *dto.SocialLoginRequest, client domain.ClientMetadata) (*dto.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string, client domain.ClientMetadata) (*dto.AuthResponse, error)
	Logout(ctx context.Context, claims *domain.AccessClaims, all bool) error
	GetMe(ctx context.Context, claims *domain.AccessClaims) (*dto.MeResponse, error)
	ListSessions(ctx context.Context, claims *domain.AccessClaims) (*dto.SessionsResponse, error)
	UpdateMetadata(ctx context.Context, identityID string, metadata map[string]any) (*dto.IdentityResponse, error)
	AssignRole(ctx context.Context, identityID, role string) (*dto.AssignRoleResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.AccessClaims, error)
	RefreshTokenTTL() time.Duration
}

// TokenDenyList tracks access tokens revoked before their expiry, either one
// token at a time or every token issued for a session
type TokenDenyList interface {
	Deny(ctx context.Context, tokenID string, ttl time.Duration) error
	DenySessions(ctx context.Context, sessionIDs []string, ttl time.Duration) error
	IsDenied(ctx context.Context, tokenID, sessionID string) (bool, error)
}

// RateLimiter decides whether a keyed request fits its budget
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}
