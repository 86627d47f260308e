// Package checksum fingerprints uploaded report files so the same insurer
// report cannot be imported twice into one fortnight.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 of the file contents.
func Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Matches reports whether data hashes to expected. An empty expected
// checksum never matches.
func Matches(data []byte, expected string) bool {
	if expected == "" {
		return false
	}
	return Sum(data) == expected
}
