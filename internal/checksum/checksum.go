// Package checksum computes content digests used for optimistic updates.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether want (an ETag-style value, quotes allowed) is
// empty or equals the digest of data.
func Matches(data []byte, want string) bool {
	want = strings.Trim(strings.TrimSpace(want), `"`)
	return want == "" || strings.EqualFold(want, Sum(data))
}
