package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/identity-service/internal/domain"
	"github.com/prperemyshlev/identity-service/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres schema. Stored records
// are replaced, never mutated, so snapshots can share pointers.
type memStore struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	identities  map[string]*domain.Identity
	credentials map[string]*domain.LocalCredential
	links       map[string]*domain.SocialLink
	roles       map[string]map[string]bool
	catalogue   map[string]bool
	sessions    map[string]*domain.Session
	legacy      map[string]*domain.LegacyCredential
	failures    map[string]error
	calls       map[string]int

	// onLegacyLookup runs after a legacy lookup, outside the store lock
	onLegacyLookup func()
}

func newMemStore() *memStore {
	return &memStore{
		identities:  map[string]*domain.Identity{},
		credentials: map[string]*domain.LocalCredential{},
		links:       map[string]*domain.SocialLink{},
		roles:       map[string]map[string]bool{},
		catalogue:   map[string]bool{domain.RolePlayer: true, domain.RoleAdmin: true},
		sessions:    map[string]*domain.Session{},
		legacy:      map[string]*domain.LegacyCredential{},
		failures:    map[string]error{},
		calls:       map[string]int{},
	}
}

func (s *memStore) repos() *repository.Repositories {
	repos := &repository.Repositories{
		Identity:   &memIdentityRepo{s},
		Credential: &memCredentialRepo{s},
		SocialLink: &memSocialLinkRepo{s},
		Role:       &memRoleRepo{s},
		Session:    &memSessionRepo{s},
		Legacy:     &memLegacyRepo{s},
	}
	repos.Tx = &memTx{store: s, repos: repos}
	return repos
}

// fail makes op return err until cleared with a nil err
func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter records a call and returns the injected failure for op. Caller holds mu.
func (s *memStore) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *memStore) identityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

func (s *memStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *memStore) sessionList() []*domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *memStore) addLegacy(id, email, encrypted string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy[domain.NormalizeEmail(email)] = &domain.LegacyCredential{ID: id, Email: email, EncryptedPassword: encrypted}
}

type memSnapshot struct {
	identities  map[string]*domain.Identity
	credentials map[string]*domain.LocalCredential
	links       map[string]*domain.SocialLink
	roles       map[string]map[string]bool
	sessions    map[string]*domain.Session
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make(map[string]map[string]bool, len(s.roles))
	for id, set := range s.roles {
		roles[id] = copyMap(set)
	}
	return memSnapshot{
		identities:  copyMap(s.identities),
		credentials: copyMap(s.credentials),
		links:       copyMap(s.links),
		roles:       roles,
		sessions:    copyMap(s.sessions),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = snap.identities
	s.credentials = snap.credentials
	s.links = snap.links
	s.roles = snap.roles
	s.sessions = snap.sessions
}

type memTx struct {
	store *memStore
	repos *repository.Repositories
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *repository.Repositories) error) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	snap := t.store.snapshot()
	if err := fn(ctx, t.repos); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memIdentityRepo struct{ s *memStore }

func cloneIdentity(i *domain.Identity) *domain.Identity {
	c := *i
	c.Metadata = copyMap(i.Metadata)
	return &c
}

func (r *memIdentityRepo) byEmail(email string) *domain.Identity {
	for _, identity := range r.s.identities {
		if identity.Email == email {
			return identity
		}
	}
	return nil
}

func (r *memIdentityRepo) insert(identity *domain.Identity) {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	now := time.Now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = now
	}
	r.s.identities[identity.ID] = cloneIdentity(identity)
}

func (r *memIdentityRepo) Create(ctx context.Context, identity *domain.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("identity.create"); err != nil {
		return err
	}
	if r.byEmail(identity.Email) != nil {
		return fmt.Errorf("identity with email %s already exists: %w", identity.Email, repository.ErrDuplicateEmail)
	}
	r.insert(identity)
	return nil
}

func (r *memIdentityRepo) FindOrCreate(ctx context.Context, identity *domain.Identity) (*domain.Identity, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("identity.find_or_create"); err != nil {
		return nil, false, err
	}
	if existing := r.byEmail(identity.Email); existing != nil {
		return cloneIdentity(existing), false, nil
	}
	r.insert(identity)
	return cloneIdentity(identity), true, nil
}

func (r *memIdentityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("identity.get_by_email"); err != nil {
		return nil, err
	}
	if existing := r.byEmail(email); existing != nil {
		return cloneIdentity(existing), nil
	}
	return nil, fmt.Errorf("identity with email %s not found: %w", email, repository.ErrNotFound)
}

func (r *memIdentityRepo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("identity.get_by_id"); err != nil {
		return nil, err
	}
	if existing, ok := r.s.identities[id]; ok {
		return cloneIdentity(existing), nil
	}
	return nil, fmt.Errorf("identity with id %s not found: %w", id, repository.ErrNotFound)
}

func (r *memIdentityRepo) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("identity.update_metadata"); err != nil {
		return nil, err
	}
	existing, ok := r.s.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity with id %s not found: %w", id, repository.ErrNotFound)
	}
	updated := cloneIdentity(existing)
	updated.Metadata = copyMap(metadata)
	updated.UpdatedAt = time.Now()
	r.s.identities[id] = updated
	return cloneIdentity(updated), nil
}

func (r *memIdentityRepo) UpdateLastLogin(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("identity.update_last_login"); err != nil {
		return err
	}
	existing, ok := r.s.identities[id]
	if !ok {
		return fmt.Errorf("identity with id %s not found: %w", id, repository.ErrNotFound)
	}
	updated := cloneIdentity(existing)
	now := time.Now()
	updated.LastLoginAt = &now
	r.s.identities[id] = updated
	return nil
}

type memCredentialRepo struct{ s *memStore }

func (r *memCredentialRepo) Upsert(ctx context.Context, credential *domain.LocalCredential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("credential.upsert"); err != nil {
		return err
	}
	if credential.ChangedAt.IsZero() {
		credential.ChangedAt = time.Now()
	}
	c := *credential
	r.s.credentials[credential.IdentityID] = &c
	return nil
}

func (r *memCredentialRepo) GetByIdentityID(ctx context.Context, identityID string) (*domain.LocalCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("credential.get"); err != nil {
		return nil, err
	}
	if credential, ok := r.s.credentials[identityID]; ok {
		c := *credential
		return &c, nil
	}
	return nil, fmt.Errorf("local credential for identity %s not found: %w", identityID, repository.ErrNotFound)
}

type memSocialLinkRepo struct{ s *memStore }

func cloneLink(l *domain.SocialLink) *domain.SocialLink {
	c := *l
	c.Metadata = copyMap(l.Metadata)
	if l.IdentityID != nil {
		id := *l.IdentityID
		c.IdentityID = &id
	}
	return &c
}

func (r *memSocialLinkRepo) byProvider(provider, externalID string) *domain.SocialLink {
	for _, link := range r.s.links {
		if link.Provider == provider && link.ExternalID == externalID {
			return link
		}
	}
	return nil
}

func (r *memSocialLinkRepo) GetByProvider(ctx context.Context, provider, externalID string) (*domain.SocialLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("link.get_by_provider"); err != nil {
		return nil, err
	}
	if link := r.byProvider(provider, externalID); link != nil {
		return cloneLink(link), nil
	}
	return nil, fmt.Errorf("social link %s/%s not found: %w", provider, externalID, repository.ErrNotFound)
}

func (r *memSocialLinkRepo) FindOrCreate(ctx context.Context, link *domain.SocialLink) (*domain.SocialLink, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("link.find_or_create"); err != nil {
		return nil, false, err
	}
	if existing := r.byProvider(link.Provider, link.ExternalID); existing != nil {
		return cloneLink(existing), false, nil
	}
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	r.s.links[link.ID] = cloneLink(link)
	return cloneLink(link), true, nil
}

func (r *memSocialLinkRepo) Link(ctx context.Context, linkID, identityID string) (*domain.SocialLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("link.link"); err != nil {
		return nil, err
	}
	existing, ok := r.s.links[linkID]
	if !ok {
		return nil, fmt.Errorf("social link %s not found: %w", linkID, repository.ErrNotFound)
	}
	if existing.IdentityID == nil {
		updated := cloneLink(existing)
		id := identityID
		now := time.Now()
		updated.IdentityID = &id
		updated.LinkedAt = &now
		r.s.links[linkID] = updated
		existing = updated
	}
	return cloneLink(existing), nil
}

func (r *memSocialLinkRepo) GetByIdentityID(ctx context.Context, identityID string) ([]*domain.SocialLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.SocialLink
	for _, link := range r.s.links {
		if link.IdentityID != nil && *link.IdentityID == identityID {
			out = append(out, cloneLink(link))
		}
	}
	return out, nil
}

type memRoleRepo struct{ s *memStore }

func (r *memRoleRepo) Assign(ctx context.Context, identityID, roleName string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("role.assign"); err != nil {
		return false, err
	}
	if !r.s.catalogue[roleName] {
		return false, fmt.Errorf("role %q: %w", roleName, repository.ErrRoleNotFound)
	}
	set, ok := r.s.roles[identityID]
	if !ok {
		set = map[string]bool{}
		r.s.roles[identityID] = set
	}
	if set[roleName] {
		return false, nil
	}
	set[roleName] = true
	return true, nil
}

func (r *memRoleRepo) ListByIdentity(ctx context.Context, identityID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("role.list"); err != nil {
		return nil, err
	}
	roles := []string{}
	for name := range r.s.roles[identityID] {
		roles = append(roles, name)
	}
	sort.Strings(roles)
	return roles, nil
}

type memSessionRepo struct{ s *memStore }

func (r *memSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.create"); err != nil {
		return err
	}
	for _, existing := range r.s.sessions {
		if existing.RefreshTokenHash == session.RefreshTokenHash {
			return repository.ErrDuplicateToken
		}
	}
	c := *session
	r.s.sessions[session.ID] = &c
	return nil
}

func (r *memSessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.get_by_token"); err != nil {
		return nil, err
	}
	for _, session := range r.s.sessions {
		if session.RefreshTokenHash == tokenHash {
			c := *session
			return &c, nil
		}
	}
	return nil, fmt.Errorf("session not found: %w", repository.ErrNotFound)
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.get_by_id"); err != nil {
		return nil, err
	}
	if session, ok := r.s.sessions[id]; ok {
		c := *session
		return &c, nil
	}
	return nil, fmt.Errorf("session %s not found: %w", id, repository.ErrNotFound)
}

func (r *memSessionRepo) ListByIdentity(ctx context.Context, identityID string) ([]*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.list"); err != nil {
		return nil, err
	}
	out := []*domain.Session{}
	for _, session := range r.s.sessions {
		if session.IdentityID == identityID {
			c := *session
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memSessionRepo) revoke(id string) {
	updated := *r.s.sessions[id]
	now := time.Now()
	updated.Valid = false
	updated.RevokedAt = &now
	r.s.sessions[id] = &updated
}

func (r *memSessionRepo) Invalidate(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.invalidate"); err != nil {
		return err
	}
	session, ok := r.s.sessions[id]
	if !ok || !session.Valid {
		return fmt.Errorf("valid session %s not found: %w", id, repository.ErrNotFound)
	}
	r.revoke(id)
	return nil
}

func (r *memSessionRepo) InvalidateAllForIdentity(ctx context.Context, identityID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.invalidate_all"); err != nil {
		return nil, err
	}
	ids := []string{}
	for id, session := range r.s.sessions {
		if session.IdentityID == identityID && session.Valid {
			r.revoke(id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("session.delete_expired"); err != nil {
		return err
	}
	now := time.Now()
	for id, session := range r.s.sessions {
		if session.IsExpiredAt(now) {
			delete(r.s.sessions, id)
		}
	}
	return nil
}

type memLegacyRepo struct{ s *memStore }

func (r *memLegacyRepo) GetByEmail(ctx context.Context, email string) (*domain.LegacyCredential, error) {
	if hook := r.s.onLegacyLookup; hook != nil {
		defer hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("legacy.get_by_email"); err != nil {
		return nil, err
	}
	if legacy, ok := r.s.legacy[email]; ok {
		c := *legacy
		return &c, nil
	}
	return nil, fmt.Errorf("legacy credential for %s not found: %w", email, repository.ErrNotFound)
}

// stubVerifier accepts tokens it has an assertion for
type stubVerifier struct {
	name       string
	assertions map[string]domain.AssertedIdentity
}

func (v *stubVerifier) Name() string { return v.name }

func (v *stubVerifier) Verify(ctx context.Context, rawToken string) (domain.AssertedIdentity, error) {
	assertion, ok := v.assertions[rawToken]
	if !ok {
		return domain.AssertedIdentity{}, errors.New("signature mismatch")
	}
	return assertion, nil
}

// memDenyList is an in-memory TokenDenyList
type memDenyList struct {
	mu       sync.Mutex
	denied   map[string]time.Duration
	sessions map[string]time.Duration
	err      error
}

func newMemDenyList() *memDenyList {
	return &memDenyList{denied: map[string]time.Duration{}, sessions: map[string]time.Duration{}}
}

func (d *memDenyList) Deny(ctx context.Context, tokenID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	d.denied[tokenID] = ttl
	return nil
}

func (d *memDenyList) DenySessions(ctx context.Context, sessionIDs []string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if ttl <= 0 {
		return nil
	}
	for _, id := range sessionIDs {
		if id != "" {
			d.sessions[id] = ttl
		}
	}
	return nil
}

func (d *memDenyList) IsDenied(ctx context.Context, tokenID, sessionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if _, ok := d.denied[tokenID]; ok {
		return true, nil
	}
	_, ok := d.sessions[sessionID]
	return ok, nil
}
