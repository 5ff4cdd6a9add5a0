package dto

import "time"

// IdentityResponse is the sanitized view of an identity. It never carries credentials.
type IdentityResponse struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Provider    string         `json:"provider"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	LastLoginAt *string        `json:"last_login_at"`
}

// TokensResponse carries the issued token pair
type TokensResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Identity    IdentityResponse `json:"identity"`
	Roles       []string         `json:"roles"`
	Permissions []string         `json:"permissions"`
	Tokens      TokensResponse   `json:"tokens"`
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	Identity    IdentityResponse `json:"identity"`
	Roles       []string         `json:"roles"`
	Permissions []string         `json:"permissions"`
	SessionID   string           `json:"session_id,omitempty"`
}

// SessionResponse describes one refresh session of the caller
type SessionResponse struct {
	ID        string     `json:"id"`
	UserAgent string     `json:"user_agent"`
	IPAddress string     `json:"ip_address"`
	Device    string     `json:"device"`
	Valid     bool       `json:"valid"`
	Current   bool       `json:"current"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// SessionsResponse lists the caller's sessions
type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// AssignRoleResponse reports whether a role grant changed anything
type AssignRoleResponse struct {
	IdentityID string `json:"identity_id"`
	Role       string `json:"role"`
	Assigned   bool   `json:"assigned"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorBody is the payload of an error response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds an error response
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message}}
}
