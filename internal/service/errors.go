package service

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes surfaced by the service layer
const (
	CodeValidation               = "VALIDATION_ERROR"
	CodeConflict                 = "CONFLICT"
	CodeNotFound                 = "NOT_FOUND"
	CodeNoCredentials            = "NO_CREDENTIALS"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeExternalAssertionInvalid = "EXTERNAL_ASSERTION_INVALID"
	CodeStoreUnavailable         = "STORE_UNAVAILABLE"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeRateLimited              = "RATE_LIMITED"
	CodeSessionInvalid           = "SESSION_INVALID"
)

// ErrorCode extracts a known service error code from err, or "" when err is not coded
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code(); code {
	case CodeValidation, CodeConflict, CodeNotFound, CodeNoCredentials,
		CodeInvalidCredentials, CodeExternalAssertionInvalid, CodeStoreUnavailable,
		CodeUnauthorized, CodeForbidden, CodeRateLimited, CodeSessionInvalid:
		return fmt.Sprint(code)
	}
	return ""
}

func validationError(format string, args ...any) error {
	return oops.Code(CodeValidation).Errorf(format, args...)
}

func conflictError(email string) error {
	return oops.Code(CodeConflict).
		With("email", email).
		Errorf("an identity with this email already exists")
}

func notFoundError(email string) error {
	return oops.Code(CodeNotFound).
		With("email", email).
		Errorf("invalid email or password")
}

func noCredentialsError(identityID string) error {
	return oops.Code(CodeNoCredentials).
		With("identity_id", identityID).
		Errorf("invalid email or password")
}

func invalidCredentialsError(identityID string) error {
	return oops.Code(CodeInvalidCredentials).
		With("identity_id", identityID).
		Errorf("invalid email or password")
}

func assertionError(provider string) error {
	return oops.Code(CodeExternalAssertionInvalid).
		With("provider", provider).
		Errorf("identity assertion rejected")
}

func sessionInvalidError() error {
	return oops.Code(CodeSessionInvalid).Errorf("session is invalid or expired")
}

func unauthorizedError(message string) error {
	return oops.Code(CodeUnauthorized).Errorf("%s", message)
}

// storeError marks a data-layer failure. The cause stays in the chain for logging.
func storeError(op string, err error) error {
	return oops.Code(CodeStoreUnavailable).
		With("op", op).
		Wrapf(err, "%s", op)
}

// isCode reports whether err carries code
func isCode(err error, code string) bool {
	return ErrorCode(err) == code
}
