package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string         `json:"email" binding:"required"`
	Password string         `json:"password" binding:"required"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SocialLoginRequest carries a third-party ID token. Some clients send it as access_token.
type SocialLoginRequest struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
}

// Token returns whichever token field was supplied
func (r SocialLoginRequest) Token() string {
	if r.IDToken != "" {
		return r.IDToken
	}
	return r.AccessToken
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents a logout request
type LogoutRequest struct {
	All bool `json:"all"`
}

// UpdateMetadataRequest replaces the caller's metadata map
type UpdateMetadataRequest struct {
	Metadata map[string]any `json:"metadata" binding:"required"`
}

// AssignRoleRequest grants a role to an identity
type AssignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}
