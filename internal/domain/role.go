package domain

import "time"

// Built-in roles
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// Role is an entry of the fixed role catalogue
type Role struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// RoleAssignment is the (identity, role) edge
type RoleAssignment struct {
	IdentityID string    `json:"identity_id" db:"identity_id"`
	RoleID     int64     `json:"role_id" db:"role_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// HasRole reports whether role is present in roles
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
