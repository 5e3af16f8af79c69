package middleware

import "net/http"

// RequireJWTOnly verifies the bearer token without touching the user store.
func RequireJWTOnly(v Validator) func(http.Handler) http.Handler {
	return Guard(v, ModeJWTOnly)
}
