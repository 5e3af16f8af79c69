package limiters

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashIdentifier keeps raw emails out of Redis key names.
func hashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:16])
}
