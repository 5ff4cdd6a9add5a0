package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/dto"
	"github.com/prperemyshlev/identity-service/internal/service"
	"go.uber.org/zap"
)

// Refresh token cookie settings
const (
	RefreshCookieName = "refresh_token"
	RefreshCookiePath = "/api/v1/auth/refresh"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register handles identity registration
// @Summary Register a new identity
// @Description Create a local identity with an email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !h.bind(c, &req) {
		return
	}

	response, err := h.authService.Register(c.Request.Context(), &req, clientMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, response.Tokens.RefreshToken)
	c.JSON(http.StatusCreated, response)
}

// Login handles password login
// @Summary Login
// @Description Authenticate with email and password. Legacy accounts are migrated on first login.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.bind(c, &req) {
		return
	}

	response, err := h.authService.Login(c.Request.Context(), &req, clientMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, response.Tokens.RefreshToken)
	c.JSON(http.StatusOK, response)
}

// GoogleLogin handles sign-in with a Google ID token
// @Summary Google sign-in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.SocialLoginRequest true "ID token"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/google [post]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	h.socialLogin(c, domain.ProviderGoogle)
}

// FacebookLogin handles sign-in with a Facebook token
// @Summary Facebook sign-in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.SocialLoginRequest true "Token"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/facebook [post]
func (h *AuthHandler) FacebookLogin(c *gin.Context) {
	h.socialLogin(c, domain.ProviderFacebook)
}

func (h *AuthHandler) socialLogin(c *gin.Context, providerName string) {
	var req dto.SocialLoginRequest
	if !h.bind(c, &req) {
		return
	}

	response, err := h.authService.SocialLogin(c.Request.Context(), providerName, &req, clientMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, response.Tokens.RefreshToken)
	c.JSON(http.StatusOK, response)
}

// Refresh handles token rotation
// @Summary Refresh tokens
// @Description Exchange a refresh token from the body or cookie for a new pair
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if c.Request.ContentLength > 0 {
		if !h.bind(c, &req) {
			return
		}
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(RefreshCookieName)
	}
	if refreshToken == "" {
		abortWithError(c, http.StatusBadRequest, service.CodeValidation, "refresh token is required")
		return
	}

	response, err := h.authService.RefreshToken(c.Request.Context(), refreshToken, clientMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, response.Tokens.RefreshToken)
	c.JSON(http.StatusOK, response)
}

// Logout handles session revocation
// @Summary Logout
// @Description Revoke the current session, or every session with {"all": true}
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "authentication required")
		return
	}

	var req dto.LogoutRequest
	if c.Request.ContentLength > 0 {
		if !h.bind(c, &req) {
			return
		}
	}

	if err := h.authService.Logout(c.Request.Context(), claims, req.All); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.SetCookie(RefreshCookieName, "", -1, RefreshCookiePath, "", true, true)

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out successfully",
	})
}

// GetMe returns the authenticated identity
// @Summary Current identity
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.MeResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "authentication required")
		return
	}

	me, err := h.authService.GetMe(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, me)
}

// ListSessions returns the caller's sessions
// @Summary List sessions
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.SessionsResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/sessions [get]
func (h *AuthHandler) ListSessions(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "authentication required")
		return
	}

	sessions, err := h.authService.ListSessions(c.Request.Context(), claims)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// UpdateMe replaces the caller's metadata
// @Summary Update metadata
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.UpdateMetadataRequest true "Metadata"
// @Success 200 {object} dto.IdentityResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/me [patch]
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "authentication required")
		return
	}

	var req dto.UpdateMetadataRequest
	if !h.bind(c, &req) {
		return
	}

	identity, err := h.authService.UpdateMetadata(c.Request.Context(), claims.IdentityID, req.Metadata)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, identity)
}

// AssignRole grants a role to another identity
// @Summary Assign role
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Identity ID"
// @Param request body dto.AssignRoleRequest true "Role"
// @Success 200 {object} dto.AssignRoleResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/identities/{id}/roles [post]
func (h *AuthHandler) AssignRole(c *gin.Context) {
	var req dto.AssignRoleRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.authService.AssignRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		if service.ErrorCode(err) == service.CodeNotFound {
			abortWithError(c, http.StatusNotFound, service.CodeNotFound, err.Error())
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// bind decodes the JSON body and answers 400 on failure
func (h *AuthHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWithError(c, http.StatusBadRequest, service.CodeValidation, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	maxAge := int(h.authService.RefreshTokenTTL().Seconds())
	c.SetCookie(RefreshCookieName, refreshToken, maxAge, RefreshCookiePath, "", true, true)
}
