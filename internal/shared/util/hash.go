package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the full sha256 hex digest of s.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint is a short, stable stand-in for ids that must not appear in
// logs verbatim. Empty input yields an empty fingerprint.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
