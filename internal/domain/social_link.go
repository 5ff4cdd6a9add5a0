package domain

import (
	"errors"
	"time"
)

// LinkState describes whether a social link points at an identity yet
type LinkState int

const (
	LinkUnlinked LinkState = iota
	LinkLinked
)

// String returns the state name
func (s LinkState) String() string {
	switch s {
	case LinkLinked:
		return "linked"
	default:
		return "unlinked"
	}
}

// SocialLink binds a provider's external account id to an identity.
// IdentityID is nil while the link is orphaned; it is set exactly once.
type SocialLink struct {
	ID         string         `json:"id" db:"id"`
	Provider   string         `json:"provider" db:"provider"`
	ExternalID string         `json:"external_id" db:"external_id"`
	Email      string         `json:"email" db:"email"`
	Metadata   map[string]any `json:"metadata" db:"metadata"`
	IdentityID *string        `json:"identity_id" db:"identity_id"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	LinkedAt   *time.Time     `json:"linked_at" db:"linked_at"`
}

// NewSocialLink builds a link for a verified assertion, linked to identityID when non-empty
func NewSocialLink(assertion AssertedIdentity, identityID string) (*SocialLink, error) {
	if err := assertion.Validate(); err != nil {
		return nil, err
	}

	link := &SocialLink{
		Provider:   assertion.Provider,
		ExternalID: assertion.ExternalID,
		Email:      NormalizeEmail(assertion.Email),
		Metadata:   assertion.Metadata(),
	}
	if identityID != "" {
		link.IdentityID = &identityID
	}
	return link, nil
}

// State reports whether the link is attached to an identity
func (l *SocialLink) State() LinkState {
	if l.IdentityID == nil || *l.IdentityID == "" {
		return LinkUnlinked
	}
	return LinkLinked
}

// AssertedIdentity is the (provider, external id, email) triple obtained from
// a verified third-party token. It holds facts only.
type AssertedIdentity struct {
	Provider      string
	ExternalID    string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Validate checks that the triple is complete
func (a AssertedIdentity) Validate() error {
	if a.Provider == "" || a.ExternalID == "" {
		return errors.New("assertion is missing provider or subject")
	}
	if NormalizeEmail(a.Email) == "" {
		return errors.New("assertion is missing email")
	}
	return nil
}

// Metadata returns profile attributes worth keeping on the link or a new identity
func (a AssertedIdentity) Metadata() map[string]any {
	m := map[string]any{}
	if a.Name != "" {
		m["name"] = a.Name
	}
	if a.Picture != "" {
		m["picture"] = a.Picture
	}
	return m
}
