// Package bridge authenticates bridge (device) clients with scoped tokens and
// lets superadmins issue and revoke them.
package bridge

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// TokenPrefix is the prefix of every bridge token.
	TokenPrefix = "cpb_"

	// TokenBytes is the number of random bytes in a token.
	TokenBytes = 32
)

// Scopes a token can carry.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// ValidScope reports whether s is a known scope.
func ValidScope(s string) bool {
	return s == ScopeRead || s == ScopeWrite
}

// GenerateToken returns a new cpb_<base64url> token, shown to the admin once,
// and the SHA-256 hash that is stored.
func GenerateToken() (token string, hash []byte, err error) {
	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hash of a token.
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidateTokenFormat checks the prefix and the decoded length.
func ValidateTokenFormat(token string) bool {
	encoded, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	return len(decoded) == TokenBytes
}
