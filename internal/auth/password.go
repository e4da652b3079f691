// Package auth provides salted PBKDF2 password hashing and opaque token
// generation for the account layer.
package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is deliberately modest; raise it to harden at the price of
	// login latency.
	Iterations = 5000
	keyLen     = 20
	saltLen    = 16
)

// NewSalt returns a fresh random hex salt.
func NewSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword derives the stored hash from a password and salt.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), Iterations, keyLen, sha1.New)
	return hex.EncodeToString(key)
}

// CheckPassword reports whether the password matches the stored hash,
// comparing in constant time.
func CheckPassword(password, salt, hash string) bool {
	computed := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// NewToken returns an opaque token suitable for auth cookies and API secrets.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
