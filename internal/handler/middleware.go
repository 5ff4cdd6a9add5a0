package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/service"
	"go.uber.org/zap"
)

// Context keys set by AuthMiddleware
const (
	ContextIdentityID = "identity_id"
	ContextClaims     = "claims"
)

// APIKeyHeader carries the shared client key
const APIKeyHeader = "X-Api-Key"

// APIKeyMiddleware rejects requests without the configured key. An empty key disables the gate.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			abortWithError(c, http.StatusForbidden, service.CodeForbidden, "invalid or missing API key")
			return
		}

		c.Next()
	}
}

// AuthMiddleware validates the bearer token and adds its claims to the context
func AuthMiddleware(authService service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "authorization header is required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], service.TokenType) {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.Set(ContextIdentityID, claims.IdentityID)
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

// RequireRole lets the request through only when the access token carries role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "authentication required")
			return
		}

		if !domain.HasRole(claims.Roles, role) {
			abortWithError(c, http.StatusForbidden, service.CodeForbidden, "insufficient role")
			return
		}

		c.Next()
	}
}

func claimsFromContext(c *gin.Context) (*domain.AccessClaims, bool) {
	value, exists := c.Get(ContextClaims)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*domain.AccessClaims)
	return claims, ok && claims != nil
}
