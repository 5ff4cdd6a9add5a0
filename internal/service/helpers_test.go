package service

import (
	"testing"
	"time"

	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/provider"
	"github.com/prperemyshlev/identity-service/internal/repository"
	"github.com/prperemyshlev/identity-service/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret     = "test-secret-that-is-long-enough-for-hs256"
	testPassword   = "Password123"
	testIterations = 1000
)

type fixture struct {
	store    *memStore
	repos    *repository.Repositories
	jwt      *utils.JWTManager
	hasher   *utils.PasswordHasher
	google   *stubVerifier
	resolver *Resolver
	sessions *SessionManager
	denyList *memDenyList
	service  AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	repos := store.repos()

	jwtManager, err := utils.NewJWTManager(testSecret, 15*time.Minute)
	require.NoError(t, err)

	hasher := utils.NewPasswordHasher(testIterations)
	google := &stubVerifier{name: domain.ProviderGoogle, assertions: map[string]domain.AssertedIdentity{}}
	registry := provider.NewRegistry(google)

	logger := zap.NewNop()
	resolver := NewResolver(repos, hasher, registry, domain.RolePlayer, logger)
	sessions := NewSessionManager(repos, jwtManager, 30*24*time.Hour, logger)
	denyList := newMemDenyList()

	return &fixture{
		store:    store,
		repos:    repos,
		jwt:      jwtManager,
		hasher:   hasher,
		google:   google,
		resolver: resolver,
		sessions: sessions,
		denyList: denyList,
		service:  NewAuthService(resolver, sessions, repos, jwtManager, denyList, nil, logger),
	}
}

// allowToken registers a Google token the stub verifier will accept
func (f *fixture) allowToken(token, externalID, email string) {
	f.google.assertions[token] = domain.AssertedIdentity{
		Provider:      domain.ProviderGoogle,
		ExternalID:    externalID,
		Email:         email,
		EmailVerified: true,
		Name:          "Social Player",
	}
}
