package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The salt is the hex text of SaltBytes random bytes and is
// fed to the KDF as text, matching hashes already stored by earlier deployments.
const (
	DefaultPBKDF2Iterations = 310000
	KeyLength               = 32
	SaltBytes               = 16
)

// ErrEmptyPassword is returned when hashing an empty password
var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordHasher hashes and verifies local passwords with PBKDF2-HMAC-SHA256
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher creates a hasher with the given work factor
func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return &PasswordHasher{iterations: iterations}
}

// Iterations returns the configured work factor
func (h *PasswordHasher) Iterations() int {
	return h.iterations
}

// Hash derives a digest for password with a fresh random salt
func (h *PasswordHasher) Hash(password string) (digest string, salt string, err error) {
	if password == "" {
		return "", "", ErrEmptyPassword
	}

	raw := make([]byte, SaltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)

	return h.derive(password, salt), salt, nil
}

// Verify reports whether password produced digest with salt. Missing or
// malformed inputs never verify.
func (h *PasswordHasher) Verify(password, digest, salt string) bool {
	if password == "" || digest == "" || salt == "" {
		return false
	}
	expected, err := hex.DecodeString(digest)
	if err != nil || len(expected) != KeyLength {
		return false
	}

	computed := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, KeyLength, sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func (h *PasswordHasher) derive(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, KeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// CompareLegacyPassword compares a password with a bcrypt hash from the legacy store
func CompareLegacyPassword(password, encryptedPassword string) bool {
	if password == "" || encryptedPassword == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(encryptedPassword), []byte(password))
	return err == nil
}
