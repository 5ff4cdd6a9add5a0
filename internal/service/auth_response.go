package service

import (
	"time"

	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/dto"
)

// TokenType is the scheme clients use to present access tokens
const TokenType = "Bearer"

// toIdentityResponse strips an identity down to the fields safe to return
func toIdentityResponse(identity *domain.Identity) dto.IdentityResponse {
	response := dto.IdentityResponse{
		ID:        identity.ID,
		Email:     identity.Email,
		Provider:  identity.Provider,
		Metadata:  identity.Metadata,
		CreatedAt: identity.CreatedAt.Format(time.RFC3339),
		UpdatedAt: identity.UpdatedAt.Format(time.RFC3339),
	}
	if response.Metadata == nil {
		response.Metadata = map[string]any{}
	}
	if identity.LastLoginAt != nil {
		lastLogin := identity.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}
	return response
}

// buildAuthResponse assembles the success payload for any authentication path
func buildAuthResponse(identity *domain.Identity, issued *IssuedSession) *dto.AuthResponse {
	roles := issued.Roles
	if roles == nil {
		roles = []string{}
	}

	return &dto.AuthResponse{
		Identity:    toIdentityResponse(identity),
		Roles:       roles,
		Permissions: []string{},
		Tokens: dto.TokensResponse{
			AccessToken:      issued.Tokens.AccessToken,
			RefreshToken:     issued.Tokens.RefreshToken,
			SessionID:        issued.Tokens.SessionID,
			TokenType:        TokenType,
			ExpiresIn:        int(issued.Tokens.AccessExpiresIn.Seconds()),
			RefreshExpiresAt: issued.Tokens.RefreshExpiresAt,
		},
	}
}
