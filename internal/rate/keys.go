package rate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	loginEmailPrefix = "lms:rl:login:"
	loginIPPrefix    = "lms:rl:ip:"
	refreshPrefix    = "lms:rl:refresh:"
)

// Emails are hashed so raw addresses never appear in Redis key space.
func loginEmailKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return loginEmailPrefix + hex.EncodeToString(sum[:16])
}

func loginIPKey(ip string) string {
	return loginIPPrefix + ip
}

func refreshKey(userID string) string {
	return refreshPrefix + userID
}
