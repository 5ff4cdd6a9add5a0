package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// roleRepository implements RoleRepository interface
type roleRepository struct {
	db DBTX
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepository{db: db}
}

// Assign grants the named role. Granting a role twice is a no-op.
func (r *roleRepository) Assign(ctx context.Context, identityID, roleName string) (bool, error) {
	var roleID int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, roleName).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("role %q: %w", roleName, ErrRoleNotFound)
		}
		return false, fmt.Errorf("failed to look up role: %w", err)
	}

	query := `
		INSERT INTO role_assignments (identity_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (identity_id, role_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, identityID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to assign role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListByIdentity returns role names held by an identity
func (r *roleRepository) ListByIdentity(ctx context.Context, identityID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.identity_id = $1
		ORDER BY r.name
	`

	rows, err := r.db.QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}
