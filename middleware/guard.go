package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

// Mode selects how much a guard checks beyond the token itself.
type Mode int

const (
	ModeJWTOnly Mode = iota
	ModeStrict
)

// Validator is the engine surface the guards need. *lmsauth.Engine implements it.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*lmsauth.AccessClaims, error)
	CurrentUser(ctx context.Context, accessToken string) (*lmsauth.User, error)
}

// Result is what a guard stores in the request context.
type Result struct {
	Claims *lmsauth.AccessClaims
	// User is only set in ModeStrict.
	User *lmsauth.User
}

type resultContextKey struct{}

func ResultFromContext(ctx context.Context) (*Result, bool) {
	res, ok := ctx.Value(resultContextKey{}).(*Result)
	return res, ok
}

func Guard(v Validator, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, lmsauth.ErrInvalidToken)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, lmsauth.ErrInvalidToken)
				return
			}

			res, err := validate(r.Context(), v, token, mode)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), resultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validate(ctx context.Context, v Validator, token string, mode Mode) (*Result, error) {
	claims, err := v.ValidateAccess(ctx, token)
	if err != nil {
		return nil, err
	}
	res := &Result{Claims: claims}
	if mode == ModeStrict {
		user, err := v.CurrentUser(ctx, token)
		if err != nil {
			return nil, err
		}
		res.User = user
	}
	return res, nil
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, err error) {
	ae := lmsauth.AsAuthError(err)
	if ae.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="lmsauth"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": string(ae.Kind), "message": ae.Message},
	})
}
