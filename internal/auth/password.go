package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"strings"
)

const (
	// DigestSize is the stored password digest length in bytes.
	DigestSize = sha512.Size
	// SaltSize is the per-identity salt length in bytes; the salt is also the HMAC key.
	SaltSize = 128
)

// HashPassword derives a digest for password with a fresh random salt.
// The digest is HMAC-SHA-512 over the UTF-8 password keyed by the salt.
func HashPassword(password string) (digest, salt []byte, err error) {
	if strings.TrimSpace(password) == "" {
		return nil, nil, fmt.Errorf("%w: password is empty", ErrInvalidArgument)
	}
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	return computeDigest(password, salt), salt, nil
}

// VerifyPassword recomputes the digest with the stored salt and compares in constant time.
func VerifyPassword(password string, digest, salt []byte) (bool, error) {
	if strings.TrimSpace(password) == "" {
		return false, fmt.Errorf("%w: password is empty", ErrInvalidArgument)
	}
	if len(digest) != DigestSize {
		return false, fmt.Errorf("%w: digest must be %d bytes", ErrInvalidArgument, DigestSize)
	}
	if len(salt) != SaltSize {
		return false, fmt.Errorf("%w: salt must be %d bytes", ErrInvalidArgument, SaltSize)
	}
	computed := computeDigest(password, salt)
	return subtle.ConstantTimeCompare(computed, digest) == 1, nil
}

func computeDigest(password string, salt []byte) []byte {
	mac := hmac.New(sha512.New, salt)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}
