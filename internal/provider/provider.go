package provider

import (
	"context"
	"errors"

	"github.com/prperemyshlev/identity-service/internal/domain"
)

var (
	// ErrUnknownProvider is returned when no verifier is registered under a name
	ErrUnknownProvider = errors.New("unknown identity provider")

	// ErrInvalidAssertion is returned when a third-party token fails verification
	ErrInvalidAssertion = errors.New("identity assertion is invalid")
)

// Verifier turns a raw third-party token into verified identity facts.
// Implementations never create users, links, or sessions.
type Verifier interface {
	// Name returns the provider identifier (e.g. "google").
	Name() string

	// Verify checks signature, issuer, audience and expiry of the token and
	// returns the asserted (provider, external id, email) triple.
	Verify(ctx context.Context, rawToken string) (domain.AssertedIdentity, error)
}
