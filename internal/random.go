// Package internal holds random-material helpers shared by the engine
// packages.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// backupCodeAlphabet excludes lowercase so codes survive being read
// aloud or written down.
const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewBackupCode returns a random code drawn uniformly from the
// uppercase alphanumeric alphabet.
func NewBackupCode(length int) (string, error) {
	if length < 6 {
		return "", errors.New("backup code length must be >= 6")
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(length)
	for _, c := range raw {
		// 36 divides 252, so rejecting 252..255 keeps the draw uniform.
		for c >= 252 {
			one := make([]byte, 1)
			if _, err := rand.Read(one); err != nil {
				return "", err
			}
			c = one[0]
		}
		b.WriteByte(backupCodeAlphabet[int(c)%len(backupCodeAlphabet)])
	}
	return b.String(), nil
}

// HashBackupCode binds the digest to the owning user so equal codes
// held by different users never collide in storage.
func HashBackupCode(userID, code string) string {
	sum := sha256.Sum256([]byte(userID + ":" + strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken returns an unguessable token for reset grants,
// verification links, and session keys.
func NewOpaqueToken() string {
	return uuid.NewString()
}

// HashToken digests an opaque token for storage keys so the raw value
// never lands in a backend.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
