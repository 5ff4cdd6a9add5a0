package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/prperemyshlev/identity-service/internal/domain"
)

// OIDCVerifier validates OpenID Connect ID tokens issued by one provider
type OIDCVerifier struct {
	name                 string
	verifier             *oidc.IDTokenVerifier
	requireVerifiedEmail bool
}

// Option configures an OIDCVerifier
type Option func(*OIDCVerifier)

// RequireVerifiedEmail rejects tokens whose email_verified claim is not true
func RequireVerifiedEmail() Option {
	return func(v *OIDCVerifier) {
		v.requireVerifiedEmail = true
	}
}

// NewOIDCVerifier discovers the issuer's signing keys and builds a verifier
// that accepts tokens minted for clientID.
func NewOIDCVerifier(ctx context.Context, name, issuer, clientID string, opts ...Option) (*OIDCVerifier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%s client id is not configured", name)
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s oidc provider: %w", name, err)
	}

	return newOIDCVerifier(name, oidcProvider.Verifier(&oidc.Config{ClientID: clientID}), opts...), nil
}

// NewStaticOIDCVerifier builds a verifier over a fixed key set, skipping discovery
func NewStaticOIDCVerifier(name, issuer string, keySet oidc.KeySet, config *oidc.Config, opts ...Option) *OIDCVerifier {
	return newOIDCVerifier(name, oidc.NewVerifier(issuer, keySet, config), opts...)
}

func newOIDCVerifier(name string, verifier *oidc.IDTokenVerifier, opts ...Option) *OIDCVerifier {
	v := &OIDCVerifier{name: name, verifier: verifier}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name returns the provider identifier used by the registry
func (v *OIDCVerifier) Name() string {
	return v.name
}

// flexBool accepts both JSON booleans and the string form some issuers emit
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case bool:
		*b = flexBool(value)
	case string:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		*b = flexBool(parsed)
	case nil:
		*b = false
	default:
		return errors.New("invalid boolean claim")
	}
	return nil
}

// Verify validates the ID token and extracts the asserted identity
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (domain.AssertedIdentity, error) {
	if rawToken == "" {
		return domain.AssertedIdentity{}, fmt.Errorf("%w: empty %s token", ErrInvalidAssertion, v.name)
	}

	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domain.AssertedIdentity{}, fmt.Errorf("%w: %s id_token verification failed: %v", ErrInvalidAssertion, v.name, err)
	}

	var claims struct {
		Subject       string   `json:"sub"`
		Email         string   `json:"email"`
		EmailVerified flexBool `json:"email_verified"`
		Name          string   `json:"name"`
		Picture       string   `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return domain.AssertedIdentity{}, fmt.Errorf("%w: %s id_token claims parse failed: %v", ErrInvalidAssertion, v.name, err)
	}

	if v.requireVerifiedEmail && !bool(claims.EmailVerified) {
		return domain.AssertedIdentity{}, fmt.Errorf("%w: %s email is not verified", ErrInvalidAssertion, v.name)
	}

	assertion := domain.AssertedIdentity{
		Provider:      v.name,
		ExternalID:    claims.Subject,
		Email:         domain.NormalizeEmail(claims.Email),
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
	}
	if err := assertion.Validate(); err != nil {
		return domain.AssertedIdentity{}, fmt.Errorf("%w: %s: %v", ErrInvalidAssertion, v.name, err)
	}

	return assertion, nil
}
