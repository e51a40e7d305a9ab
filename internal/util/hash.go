package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// HashString returns the hex SHA-256 of value.
func HashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 8 hex characters of the SHA-256, enough to
// tell rule sets and annotation sets apart in logs and snapshots.
func ShortHash(value string) string {
	full := HashString(value)
	if len(full) < 8 {
		return full
	}
	return full[:8]
}

// NewID returns a random 16-character hex trace ID, falling back to a
// timestamp if the system randomness source fails.
func NewID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
