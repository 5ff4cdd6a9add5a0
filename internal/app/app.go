package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/identity-service/internal/config"
	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/handler"
	"github.com/prperemyshlev/identity-service/internal/provider"
	"github.com/prperemyshlev/identity-service/internal/repository"
	"github.com/prperemyshlev/identity-service/internal/service"
	"github.com/prperemyshlev/identity-service/internal/utils"
	"github.com/prperemyshlev/identity-service/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second
	serviceName     = "identity-service"
)

type App struct {
	infra    Infrastructure
	config   *config.Config
	router   *gin.Engine
	server   *http.Server
	sessions *service.SessionManager
}

type options struct {
	verifiers []provider.Verifier
}

// Option customises NewApp
type Option func(*options)

// WithVerifiers registers social verifiers instead of discovering them from config
func WithVerifiers(verifiers ...provider.Verifier) Option {
	return func(o *options) {
		o.verifiers = append(o.verifiers, verifiers...)
	}
}

func NewApp(ctx context.Context, infra Infrastructure, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres())

	jwtManager, err := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt manager: %w", err)
	}

	metrics, err := observability.NewAuthMetrics()
	if err != nil {
		return nil, err
	}

	verifiers := o.verifiers
	if verifiers == nil {
		verifiers = socialVerifiers(ctx, cfg.OAuth, logger)
	}
	providers := provider.NewRegistry(verifiers...)

	resolver := service.NewResolver(
		repos,
		utils.NewPasswordHasher(cfg.Security.PBKDF2Iterations),
		providers,
		cfg.Security.DefaultRole,
		logger,
	)
	sessions := service.NewSessionManager(repos, jwtManager, cfg.JWT.RefreshTokenExpiry.Duration, logger)
	denyList := service.NewRedisTokenDenyList(infra.Redis())
	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	authService := service.NewAuthService(resolver, sessions, repos, jwtManager, denyList, metrics, logger)
	authHandler := handler.NewAuthHandler(authService, logger)

	cors, err := handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(cors)

	setupRoutes(router, cfg, authHandler, authService, rateLimiter, healthChecker, infra.MetricsHandler(), logger)

	logger.Info("Identity providers configured", zap.Strings("providers", providers.Names()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:    infra,
		config:   cfg,
		router:   router,
		server:   srv,
		sessions: sessions,
	}, nil
}

// socialVerifiers discovers the configured OIDC issuers. A provider whose
// discovery fails is left out and its sign-in answers as an invalid assertion.
func socialVerifiers(ctx context.Context, cfg config.OAuthConfig, logger *zap.Logger) []provider.Verifier {
	var verifiers []provider.Verifier

	if cfg.GoogleClientID != "" {
		google, err := provider.NewOIDCVerifier(ctx, domain.ProviderGoogle, cfg.GoogleIssuer, cfg.GoogleClientID, provider.RequireVerifiedEmail())
		if err != nil {
			logger.Warn("Google sign-in disabled", zap.Error(err))
		} else {
			verifiers = append(verifiers, google)
		}
	}

	if cfg.FacebookClientID != "" {
		facebook, err := provider.NewOIDCVerifier(ctx, domain.ProviderFacebook, cfg.FacebookIssuer, cfg.FacebookClientID)
		if err != nil {
			logger.Warn("Facebook sign-in disabled", zap.Error(err))
		} else {
			verifiers = append(verifiers, facebook)
		}
	}

	return verifiers
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	rateLimiter service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	limit := handler.RateLimitMiddleware(
		rateLimiter,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.RouteAndIPKey,
		logger,
	)
	authenticated := handler.AuthMiddleware(authService, logger)

	api := router.Group("/api/v1", handler.APIKeyMiddleware(cfg.APIKey))
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", limit, authHandler.Register)
			auth.POST("/login", limit, authHandler.Login)
			auth.POST("/google", limit, authHandler.GoogleLogin)
			auth.POST("/facebook", limit, authHandler.FacebookLogin)
			auth.POST("/refresh", limit, authHandler.Refresh)
			auth.POST("/logout", authenticated, authHandler.Logout)
			auth.GET("/me", authenticated, authHandler.GetMe)
			auth.PATCH("/me", authenticated, authHandler.UpdateMe)
			auth.GET("/sessions", authenticated, authHandler.ListSessions)
		}

		admin := api.Group("/admin", authenticated, handler.RequireRole(domain.RoleAdmin))
		{
			admin.POST("/identities/:id/roles", authHandler.AssignRole)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runSessionSweeper(sweepCtx, a.sessions, a.config.Security.SessionSweepInterval.Duration, a.infra.Logger())

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	stopSweep()
	if err := a.Shutdown(); err != nil {
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// the server drains before its backing stores close
	serverErr := a.server.Shutdown(ctx)
	infraErr := a.infra.Shutdown(ctx)

	if err := errors.Join(serverErr, infraErr); err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
