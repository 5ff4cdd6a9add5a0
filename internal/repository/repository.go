package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prperemyshlev/identity-service/pkg/database"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories holds all repository interfaces
type Repositories struct {
	Identity   IdentityRepository
	Credential CredentialRepository
	SocialLink SocialLinkRepository
	Role       RoleRepository
	Session    SessionRepository
	Legacy     LegacyCredentialRepository
	Tx         Transactor
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	repos := newRepositories(db.DB)
	repos.Tx = &txRunner{db: db.DB}
	return repos
}

func newRepositories(q DBTX) *Repositories {
	return &Repositories{
		Identity:   NewIdentityRepository(q),
		Credential: NewCredentialRepository(q),
		SocialLink: NewSocialLinkRepository(q),
		Role:       NewRoleRepository(q),
		Session:    NewSessionRepository(q),
		Legacy:     NewLegacyCredentialRepository(q),
	}
}

type txRunner struct {
	db *sql.DB
}

// WithinTx begins a transaction, runs fn and commits if fn succeeds
func (r *txRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	repos := newRepositories(tx)
	repos.Tx = nestedTx{repos: repos}

	if err := fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// nestedTx reuses the enclosing transaction
type nestedTx struct {
	repos *Repositories
}

func (n nestedTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	return fn(ctx, n.repos)
}
