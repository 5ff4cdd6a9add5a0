package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/dto"
	"github.com/prperemyshlev/identity-service/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAuthService answers with canned values and records the last call's inputs
type stubAuthService struct {
	response *dto.AuthResponse
	me       *dto.MeResponse
	sessions *dto.SessionsResponse
	identity *dto.IdentityResponse
	assigned *dto.AssignRoleResponse
	claims   *domain.AccessClaims
	err      error

	lastClient   domain.ClientMetadata
	lastRefresh  string
	lastProvider string
	lastAll      bool
	loggedOut    bool
}

func (s *stubAuthService) Register(_ context.Context, _ *dto.RegisterRequest, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	s.lastClient = client
	return s.response, s.err
}

func (s *stubAuthService) Login(_ context.Context, _ *dto.LoginRequest, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	s.lastClient = client
	return s.response, s.err
}

func (s *stubAuthService) SocialLogin(_ context.Context, providerName string, _ *dto.SocialLoginRequest, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	s.lastProvider = providerName
	s.lastClient = client
	return s.response, s.err
}

func (s *stubAuthService) RefreshToken(_ context.Context, refreshToken string, client domain.ClientMetadata) (*dto.AuthResponse, error) {
	s.lastRefresh = refreshToken
	s.lastClient = client
	return s.response, s.err
}

func (s *stubAuthService) Logout(_ context.Context, _ *domain.AccessClaims, all bool) error {
	s.lastAll = all
	s.loggedOut = true
	return s.err
}

func (s *stubAuthService) GetMe(context.Context, *domain.AccessClaims) (*dto.MeResponse, error) {
	return s.me, s.err
}

func (s *stubAuthService) ListSessions(context.Context, *domain.AccessClaims) (*dto.SessionsResponse, error) {
	return s.sessions, s.err
}

func (s *stubAuthService) UpdateMetadata(context.Context, string, map[string]any) (*dto.IdentityResponse, error) {
	return s.identity, s.err
}

func (s *stubAuthService) AssignRole(context.Context, string, string) (*dto.AssignRoleResponse, error) {
	return s.assigned, s.err
}

func (s *stubAuthService) ValidateToken(_ context.Context, token string) (*domain.AccessClaims, error) {
	if token != "good-token" {
		return nil, oops.Code(service.CodeUnauthorized).Errorf("invalid or expired token")
	}
	return s.claims, nil
}

func (s *stubAuthService) RefreshTokenTTL() time.Duration {
	return 24 * time.Hour
}

func sampleAuthResponse() *dto.AuthResponse {
	return &dto.AuthResponse{
		Identity:    dto.IdentityResponse{ID: "id-1", Email: "user@example.com", Provider: domain.ProviderLocal},
		Roles:       []string{"player"},
		Permissions: []string{},
		Tokens: dto.TokensResponse{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    service.TokenType,
			ExpiresIn:    900,
		},
	}
}

func newTestRouter(svc *stubAuthService) *gin.Engine {
	h := NewAuthHandler(svc, zap.NewNop())
	authenticated := AuthMiddleware(svc, zap.NewNop())

	router := gin.New()
	auth := router.Group("/api/v1/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/google", h.GoogleLogin)
	auth.POST("/facebook", h.FacebookLogin)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", authenticated, h.Logout)
	auth.GET("/me", authenticated, h.GetMe)
	auth.PATCH("/me", authenticated, h.UpdateMe)
	auth.GET("/sessions", authenticated, h.ListSessions)
	router.POST("/api/v1/admin/identities/:id/roles", authenticated, RequireRole("admin"), h.AssignRole)
	return router
}

func doJSON(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorBody {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRegister_Created(t *testing.T) {
	svc := &stubAuthService{response: sampleAuthResponse()}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/register",
		dto.RegisterRequest{Email: "user@example.com", Password: "Password123"},
		map[string]string{"User-Agent": "test-agent", "X-Forwarded-For": "10.0.0.1, 10.0.0.2", DeviceHeader: "phone"},
	)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user@example.com", resp.Identity.Email)
	assert.Equal(t, "access", resp.Tokens.AccessToken)

	assert.Equal(t, domain.ClientMetadata{UserAgent: "test-agent", IPAddress: "10.0.0.1", Device: "phone"}, svc.lastClient)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, RefreshCookieName, cookies[0].Name)
	assert.Equal(t, "refresh", cookies[0].Value)
	assert.Equal(t, RefreshCookiePath, cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)
}

func TestRegister_MissingFields(t *testing.T) {
	router := newTestRouter(&stubAuthService{response: sampleAuthResponse()})

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/register", map[string]string{"email": "user@example.com"}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.CodeValidation, decodeError(t, rec).Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"conflict", oops.Code(service.CodeConflict).Errorf("email already registered"), http.StatusConflict, service.CodeConflict},
		{"validation", oops.Code(service.CodeValidation).Errorf("bad email"), http.StatusBadRequest, service.CodeValidation},
		{"invalid credentials", oops.Code(service.CodeInvalidCredentials).Errorf("invalid email or password"), http.StatusUnauthorized, service.CodeInvalidCredentials},
		{"unknown identity", oops.Code(service.CodeNotFound).Errorf("invalid email or password"), http.StatusUnauthorized, service.CodeNotFound},
		{"no credentials", oops.Code(service.CodeNoCredentials).Errorf("invalid email or password"), http.StatusUnauthorized, service.CodeNoCredentials},
		{"store down", oops.Code(service.CodeStoreUnavailable).Errorf("connection refused"), http.StatusInternalServerError, service.CodeStoreUnavailable},
		{"uncoded", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubAuthService{err: tt.err})

			rec := doJSON(router, http.MethodPost, "/api/v1/auth/login",
				dto.LoginRequest{Email: "user@example.com", Password: "Password123"}, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Message)
			}
		})
	}
}

func TestSocialLogin_RoutesProvider(t *testing.T) {
	svc := &stubAuthService{response: sampleAuthResponse()}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/google", dto.SocialLoginRequest{IDToken: "id-token"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ProviderGoogle, svc.lastProvider)

	rec = doJSON(router, http.MethodPost, "/api/v1/auth/facebook", dto.SocialLoginRequest{AccessToken: "fb-token"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ProviderFacebook, svc.lastProvider)
}

func TestSocialLogin_InvalidAssertion(t *testing.T) {
	svc := &stubAuthService{err: oops.Code(service.CodeExternalAssertionInvalid).Errorf("google assertion rejected")}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/google", dto.SocialLoginRequest{IDToken: "bad"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.CodeExternalAssertionInvalid, decodeError(t, rec).Code)
}

func TestRefresh_BodyOrCookie(t *testing.T) {
	svc := &stubAuthService{response: sampleAuthResponse()}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", dto.RefreshRequest{RefreshToken: "from-body"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-body", svc.lastRefresh)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "from-cookie"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-cookie", svc.lastRefresh)
}

func TestRefresh_MissingToken(t *testing.T) {
	router := newTestRouter(&stubAuthService{response: sampleAuthResponse()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.CodeValidation, decodeError(t, rec).Code)
}

func TestRefresh_ReusedToken(t *testing.T) {
	svc := &stubAuthService{err: oops.Code(service.CodeSessionInvalid).Errorf("session is no longer valid")}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", dto.RefreshRequest{RefreshToken: "old"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.CodeSessionInvalid, decodeError(t, rec).Code)
}

func TestLogout(t *testing.T) {
	svc := &stubAuthService{claims: &domain.AccessClaims{IdentityID: "id-1", SessionID: "s-1"}}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPost, "/api/v1/auth/logout", dto.LogoutRequest{All: true},
		map[string]string{"Authorization": "Bearer good-token"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.loggedOut)
	assert.True(t, svc.lastAll)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestLogout_WithoutBody(t *testing.T) {
	svc := &stubAuthService{claims: &domain.AccessClaims{IdentityID: "id-1", SessionID: "s-1"}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.lastAll)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	router := newTestRouter(&stubAuthService{claims: &domain.AccessClaims{IdentityID: "id-1"}})

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"extra parts", "Bearer a b"},
		{"bad token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, headers)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, service.CodeUnauthorized, decodeError(t, rec).Code)
		})
	}
}

func TestGetMe(t *testing.T) {
	svc := &stubAuthService{
		claims: &domain.AccessClaims{IdentityID: "id-1", SessionID: "s-1"},
		me: &dto.MeResponse{
			Identity:    dto.IdentityResponse{ID: "id-1", Email: "user@example.com"},
			Roles:       []string{"player"},
			Permissions: []string{},
			SessionID:   "s-1",
		},
	}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, map[string]string{"Authorization": "bearer good-token"})

	require.Equal(t, http.StatusOK, rec.Code)
	var me dto.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "id-1", me.Identity.ID)
	assert.Equal(t, "s-1", me.SessionID)
}

func TestUpdateMe_RequiresMetadata(t *testing.T) {
	svc := &stubAuthService{claims: &domain.AccessClaims{IdentityID: "id-1"}}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodPatch, "/api/v1/auth/me", map[string]any{},
		map[string]string{"Authorization": "Bearer good-token"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignRole(t *testing.T) {
	admin := &domain.AccessClaims{IdentityID: "admin-1", Roles: []string{"admin"}}
	player := &domain.AccessClaims{IdentityID: "player-1", Roles: []string{"player"}}
	headers := map[string]string{"Authorization": "Bearer good-token"}
	body := dto.AssignRoleRequest{Role: "moderator"}

	t.Run("granted", func(t *testing.T) {
		svc := &stubAuthService{claims: admin, assigned: &dto.AssignRoleResponse{IdentityID: "id-2", Role: "moderator", Assigned: true}}
		rec := doJSON(newTestRouter(svc), http.MethodPost, "/api/v1/admin/identities/id-2/roles", body, headers)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.AssignRoleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Assigned)
	})

	t.Run("forbidden without admin role", func(t *testing.T) {
		svc := &stubAuthService{claims: player}
		rec := doJSON(newTestRouter(svc), http.MethodPost, "/api/v1/admin/identities/id-2/roles", body, headers)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, service.CodeForbidden, decodeError(t, rec).Code)
	})

	t.Run("unknown identity", func(t *testing.T) {
		svc := &stubAuthService{claims: admin, err: oops.Code(service.CodeNotFound).Errorf("identity not found")}
		rec := doJSON(newTestRouter(svc), http.MethodPost, "/api/v1/admin/identities/missing/roles", body, headers)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	router := gin.New()
	router.GET("/ping", APIKeyMiddleware("secret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := doJSON(router, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, service.CodeForbidden, decodeError(t, rec).Code)

	rec = doJSON(router, http.MethodGet, "/ping", nil, map[string]string{APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(router, http.MethodGet, "/ping", nil, map[string]string{APIKeyHeader: "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddleware_DisabledWhenEmpty(t *testing.T) {
	router := gin.New()
	router.GET("/ping", APIKeyMiddleware(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := doJSON(router, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSessions(t *testing.T) {
	svc := &stubAuthService{
		claims: &domain.AccessClaims{IdentityID: "id-1", SessionID: "s-1"},
		sessions: &dto.SessionsResponse{Sessions: []dto.SessionResponse{
			{ID: "s-1", Valid: true, Current: true},
			{ID: "s-0", Valid: false},
		}},
	}
	router := newTestRouter(svc)

	rec := doJSON(router, http.MethodGet, "/api/v1/auth/sessions", nil, map[string]string{"Authorization": "Bearer good-token"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	assert.True(t, resp.Sessions[0].Current)
}
