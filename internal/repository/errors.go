package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create an identity with an existing email
	ErrDuplicateEmail = errors.New("identity with this email already exists")

	// ErrDuplicateToken is returned when trying to create a session with an existing refresh token hash
	ErrDuplicateToken = errors.New("session with this token hash already exists")

	// ErrRoleNotFound is returned when assigning a role missing from the catalogue
	ErrRoleNotFound = errors.New("role not found")
)

// isUniqueViolation reports whether err is a unique_violation, optionally on a specific constraint
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
