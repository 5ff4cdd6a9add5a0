package service

import (
	"context"
	"errors"

	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/provider"
	"github.com/prperemyshlev/identity-service/internal/repository"
	"github.com/prperemyshlev/identity-service/internal/utils"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Resolver maps a credential presentation to one canonical identity,
// creating, migrating, or linking records as needed.
type Resolver struct {
	repos       *repository.Repositories
	hasher      *utils.PasswordHasher
	providers   *provider.Registry
	defaultRole string
	logger      *zap.Logger
}

// NewResolver creates a new authentication resolver
func NewResolver(
	repos *repository.Repositories,
	hasher *utils.PasswordHasher,
	providers *provider.Registry,
	defaultRole string,
	logger *zap.Logger,
) *Resolver {
	if providers == nil {
		providers = provider.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		repos:       repos,
		hasher:      hasher,
		providers:   providers,
		defaultRole: defaultRole,
		logger:      logger,
	}
}

// Register creates a local identity with a password credential and the default role
func (r *Resolver) Register(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error) {
	normalized := utils.SanitizeEmail(email)
	if !utils.ValidateEmail(normalized) {
		return nil, validationError("invalid email format")
	}
	if !utils.ValidatePassword(password) {
		return nil, validationError("password must be at least 8 characters long and contain uppercase, lowercase, and number")
	}

	_, err := r.repos.Identity.GetByEmail(ctx, normalized)
	if err == nil {
		return nil, conflictError(normalized)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError("check identity existence", err)
	}

	digest, salt, err := r.hasher.Hash(password)
	if err != nil {
		return nil, oops.Wrapf(err, "hash password")
	}

	identity, err := domain.NewIdentity(normalized, domain.ProviderLocal, utils.SanitizeMetadata(metadata))
	if err != nil {
		return nil, validationError("%s", err.Error())
	}

	err = r.repos.Tx.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		if err := tx.Identity.Create(ctx, identity); err != nil {
			return err
		}
		if err := tx.Credential.Upsert(ctx, &domain.LocalCredential{
			IdentityID:   identity.ID,
			PasswordHash: digest,
			PasswordSalt: salt,
		}); err != nil {
			return err
		}
		_, err := tx.Role.Assign(ctx, identity.ID, r.defaultRole)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, conflictError(normalized)
		}
		return nil, storeError("register identity", err)
	}

	r.logger.Info("identity registered",
		zap.String("identity_id", identity.ID),
		zap.String("provider", identity.Provider),
	)

	return identity, nil
}

// Login verifies a local password. When the identity has no local credential
// yet, a matching legacy credential is migrated to the current scheme and the
// check is re-run. Identities holding a local credential never consult the
// legacy source.
func (r *Resolver) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	normalized := utils.SanitizeEmail(email)
	if normalized == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	identity, err := r.verifyLocal(ctx, normalized, password)
	if err == nil {
		return identity, nil
	}

	switch ErrorCode(err) {
	case CodeNotFound, CodeNoCredentials:
	default:
		return nil, err
	}

	if !r.migrateLegacy(ctx, normalized, password) {
		return nil, err
	}

	return r.verifyLocal(ctx, normalized, password)
}

func (r *Resolver) verifyLocal(ctx context.Context, email, password string) (*domain.Identity, error) {
	identity, err := r.repos.Identity.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(email)
		}
		return nil, storeError("get identity", err)
	}

	credential, err := r.repos.Credential.GetByIdentityID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, noCredentialsError(identity.ID)
		}
		return nil, storeError("get local credential", err)
	}

	if !r.hasher.Verify(password, credential.PasswordHash, credential.PasswordSalt) {
		return nil, invalidCredentialsError(identity.ID)
	}

	return identity, nil
}

// errLegacyConsumed aborts a migration whose identity already holds a local credential
var errLegacyConsumed = errors.New("legacy credential already consumed")

// migrateLegacy rewrites a matching legacy password into a local credential.
// It reports whether the rewrite was committed; failures leave no partial state.
func (r *Resolver) migrateLegacy(ctx context.Context, email, password string) bool {
	legacy, err := r.repos.Legacy.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Error("legacy credential lookup failed", zap.Error(err))
		}
		return false
	}

	if !utils.CompareLegacyPassword(password, legacy.EncryptedPassword) {
		return false
	}

	digest, salt, err := r.hasher.Hash(password)
	if err != nil {
		r.logger.Error("failed to hash migrated password", zap.Error(err))
		return false
	}

	var identityID string
	err = r.repos.Tx.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		candidate, err := domain.NewIdentity(email, domain.ProviderLocal, map[string]any{"legacy_id": legacy.ID})
		if err != nil {
			return err
		}

		identity, created, err := tx.Identity.FindOrCreate(ctx, candidate)
		if err != nil {
			return err
		}
		if created {
			if _, err := tx.Role.Assign(ctx, identity.ID, r.defaultRole); err != nil {
				return err
			}
		}

		_, err = tx.Credential.GetByIdentityID(ctx, identity.ID)
		switch {
		case err == nil:
			return errLegacyConsumed
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		identityID = identity.ID
		return tx.Credential.Upsert(ctx, &domain.LocalCredential{
			IdentityID:   identity.ID,
			PasswordHash: digest,
			PasswordSalt: salt,
		})
	})
	if errors.Is(err, errLegacyConsumed) {
		r.logger.Warn("legacy credential already migrated",
			zap.String("legacy_id", legacy.ID),
		)
		return false
	}
	if err != nil {
		r.logger.Error("legacy credential migration failed",
			zap.String("legacy_id", legacy.ID),
			zap.Error(err),
		)
		return false
	}

	r.logger.Info("legacy credential migrated",
		zap.String("identity_id", identityID),
		zap.String("legacy_id", legacy.ID),
	)
	return true
}

// SocialSignIn verifies a third-party token and resolves the identity its
// (provider, external id) pair belongs to, linking or creating as needed.
func (r *Resolver) SocialSignIn(ctx context.Context, providerName, rawToken string) (*domain.Identity, error) {
	if rawToken == "" {
		return nil, validationError("id_token is required")
	}

	verifier, err := r.providers.Get(providerName)
	if err != nil {
		r.logger.Warn("social sign-in with unconfigured provider", zap.String("provider", providerName))
		return nil, assertionError(providerName)
	}

	assertion, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		r.logger.Warn("identity assertion rejected",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		return nil, assertionError(providerName)
	}

	link, err := r.repos.SocialLink.GetByProvider(ctx, assertion.Provider, assertion.ExternalID)
	switch {
	case err == nil && link.State() == domain.LinkLinked:
		return r.loadIdentity(ctx, *link.IdentityID)

	case err == nil:
		identity, err := r.findOrCreateSocialIdentity(ctx, assertion)
		if err != nil {
			return nil, err
		}
		return r.attach(ctx, link.ID, identity)

	case errors.Is(err, repository.ErrNotFound):
		identity, err := r.findOrCreateSocialIdentity(ctx, assertion)
		if err != nil {
			return nil, err
		}

		candidate, err := domain.NewSocialLink(assertion, identity.ID)
		if err != nil {
			return nil, assertionError(providerName)
		}

		stored, created, err := r.repos.SocialLink.FindOrCreate(ctx, candidate)
		if err != nil {
			return nil, storeError("find or create social link", err)
		}
		if created {
			r.logger.Info("social link created",
				zap.String("provider", stored.Provider),
				zap.String("identity_id", identity.ID),
			)
			return identity, nil
		}
		if stored.State() == domain.LinkUnlinked {
			return r.attach(ctx, stored.ID, identity)
		}
		return r.follow(ctx, stored, identity)

	default:
		return nil, storeError("get social link", err)
	}
}

// attach performs the one-time orphan to linked transition. A lost race yields
// the identity chosen by the winner.
func (r *Resolver) attach(ctx context.Context, linkID string, identity *domain.Identity) (*domain.Identity, error) {
	linked, err := r.repos.SocialLink.Link(ctx, linkID, identity.ID)
	if err != nil {
		return nil, storeError("link social account", err)
	}
	if linked.State() != domain.LinkLinked {
		return nil, storeError("link social account", errors.New("link remained orphaned"))
	}
	return r.follow(ctx, linked, identity)
}

func (r *Resolver) follow(ctx context.Context, link *domain.SocialLink, identity *domain.Identity) (*domain.Identity, error) {
	if *link.IdentityID == identity.ID {
		return identity, nil
	}
	return r.loadIdentity(ctx, *link.IdentityID)
}

func (r *Resolver) findOrCreateSocialIdentity(ctx context.Context, assertion domain.AssertedIdentity) (*domain.Identity, error) {
	candidate, err := domain.NewIdentity(domain.NormalizeEmail(assertion.Email), assertion.Provider, assertion.Metadata())
	if err != nil {
		return nil, assertionError(assertion.Provider)
	}

	var identity *domain.Identity
	err = r.repos.Tx.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		stored, created, err := tx.Identity.FindOrCreate(ctx, candidate)
		if err != nil {
			return err
		}
		if created {
			if _, err := tx.Role.Assign(ctx, stored.ID, r.defaultRole); err != nil {
				return err
			}
			r.logger.Info("identity created from social sign-in",
				zap.String("identity_id", stored.ID),
				zap.String("provider", assertion.Provider),
			)
		}
		identity = stored
		return nil
	})
	if err != nil {
		return nil, storeError("find or create identity", err)
	}

	return identity, nil
}

func (r *Resolver) loadIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	identity, err := r.repos.Identity.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get linked identity", err)
	}
	return identity, nil
}
