package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/identity-service/internal/domain"
)

// RefreshTokenBytes is the amount of randomness in a refresh token
const RefreshTokenBytes = 64

// ErrMissingSigningKey is returned when no signing secret is configured
var ErrMissingSigningKey = errors.New("jwt signing secret is not configured")

// accessClaims is the wire form of an access token
type accessClaims struct {
	SessionID string   `json:"sid,omitempty"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies access tokens and mints refresh tokens
type JWTManager struct {
	secret            []byte
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessTokenExpiry time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	if accessTokenExpiry <= 0 {
		accessTokenExpiry = 15 * time.Minute
	}
	return &JWTManager{
		secret:            []byte(secret),
		accessTokenExpiry: accessTokenExpiry,
		now:               time.Now,
	}, nil
}

// GenerateAccessToken generates a signed access token carrying the identity id and roles
func (j *JWTManager) GenerateAccessToken(identityID, sessionID string, roles []string) (string, error) {
	if identityID == "" {
		return "", errors.New("identity id is required")
	}
	if roles == nil {
		roles = []string{}
	}

	now := j.now()
	claims := accessClaims{
		SessionID: sessionID,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates an access token and returns its claims
func (j *JWTManager) ValidateToken(tokenString string) (*domain.AccessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid subject in token")
	}

	out := &domain.AccessClaims{
		IdentityID: claims.Subject,
		SessionID:  claims.SessionID,
		TokenID:    claims.ID,
		Roles:      claims.Roles,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if out.Roles == nil {
		out.Roles = []string{}
	}

	return out, nil
}

// GetAccessTokenExpiry returns the access token lifetime
func (j *JWTManager) GetAccessTokenExpiry() time.Duration {
	return j.accessTokenExpiry
}

// GenerateRefreshToken returns an opaque hex encoded refresh token
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DigestToken hashes a token using SHA256 for storage
func DigestToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
