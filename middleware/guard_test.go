package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/model"
)

type stubValidator struct {
	claims *lmsauth.AccessClaims
	user   *lmsauth.User
	err    error
	// userErr fails only the strict lookup.
	userErr error
}

func (s stubValidator) ValidateAccess(context.Context, string) (*lmsauth.AccessClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func (s stubValidator) CurrentUser(context.Context, string) (*lmsauth.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func serve(t *testing.T, h http.Handler, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler(t *testing.T, wantUser bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := ResultFromContext(r.Context())
		if !ok || res.Claims == nil {
			t.Fatal("missing result in context")
		}
		if wantUser != (res.User != nil) {
			t.Fatalf("unexpected user presence: %+v", res.User)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireJWTOnly(t *testing.T) {
	v := stubValidator{claims: &lmsauth.AccessClaims{Roles: []string{"teacher"}}, userErr: lmsauth.ErrUserNotActive}
	h := RequireJWTOnly(v)(okHandler(t, false))

	if rec := serve(t, h, "Bearer abc"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := serve(t, h, "bearer abc"); rec.Code != http.StatusNoContent {
		t.Fatalf("scheme must be case-insensitive, got %d", rec.Code)
	}

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer"} {
		rec := serve(t, h, header)
		if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%q: expected 401 challenge, got %d", header, rec.Code)
		}
	}
}

func TestGuardPropagatesEngineErrors(t *testing.T) {
	h := RequireJWTOnly(stubValidator{err: lmsauth.ErrTokenExpired})(okHandler(t, false))
	rec := serve(t, h, "Bearer abc")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"token_expired"`) {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, RequireJWTOnly(nil)(okHandler(t, false)), "Bearer abc")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("nil validator must reject, got %d", rec.Code)
	}
}

func TestRequireStrict(t *testing.T) {
	claims := &lmsauth.AccessClaims{Roles: []string{"student"}}
	user := &lmsauth.User{ID: "u1", Status: lmsauth.StatusActive}

	h := RequireStrict(stubValidator{claims: claims, user: user})(okHandler(t, true))
	if rec := serve(t, h, "Bearer abc"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	h = RequireStrict(stubValidator{claims: claims, userErr: lmsauth.ErrUserNotActive})(okHandler(t, true))
	rec := serve(t, h, "Bearer abc")
	if rec.Code != lmsauth.ErrUserNotActive.Status || !strings.Contains(rec.Body.String(), `"user_not_active"`) {
		t.Fatalf("inactive user must be rejected: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	v := stubValidator{claims: &lmsauth.AccessClaims{Roles: []string{"student"}}}
	teachersOnly := RequireRole(model.RoleTeacher, model.RoleBranchManager)

	rec := serve(t, RequireJWTOnly(v)(teachersOnly(okHandler(t, false))), "Bearer abc")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	v.claims = &lmsauth.AccessClaims{Roles: []string{"branch_manager"}}
	if rec := serve(t, RequireJWTOnly(v)(teachersOnly(okHandler(t, false))), "Bearer abc"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	if rec := serve(t, teachersOnly(okHandler(t, false)), "Bearer abc"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("role check without a guard must reject, got %d", rec.Code)
	}
}
