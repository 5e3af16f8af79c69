package middleware

import (
	"net/http"

	"github.com/MrEthical07/lmsauth"
)

func RequireStrict(v Validator) func(http.Handler) http.Handler {
	return Guard(v, ModeStrict)
}

// RequireRole must run inside a guard. It rejects with 403 unless the token
// carries one of roles.
func RequireRole(roles ...lmsauth.Role) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := ResultFromContext(r.Context())
			if !ok {
				writeError(w, lmsauth.ErrInvalidToken)
				return
			}
			for _, role := range res.Claims.Roles {
				if _, ok := allowed[role]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeForbidden(w)
		})
	}
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"Insufficient role"}}` + "\n"))
}
