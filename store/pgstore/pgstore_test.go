package pgstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/lmsauth/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tokenRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "token_type", "token_value", "expires_at", "created_at", "revoked", "revoked_at", "device_info", "metadata"})
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "username", "first_name", "last_name", "password_hash", "roles", "status",
		"organization_id", "branch_id", "profile_image_url", "phone_number", "email_verified", "phone_verified",
		"last_login", "created_at", "updated_at"})
}

func TestTokenRevokeCompareAndSet(t *testing.T) {
	db, mock := newMock(t)
	store := NewTokenStore(db)
	store.now = func() time.Time { return fixedNow }

	update := regexp.QuoteMeta(`UPDATE tokens SET revoked = true, revoked_at = $2 WHERE id = $1 AND revoked = false`)
	mock.ExpectQuery(update).
		WithArgs("t1", fixedNow).
		WillReturnRows(tokenRows().AddRow("t1", "u1", "refresh", "v1", fixedNow.Add(time.Hour), fixedNow, true, fixedNow, []byte(`{"ua":"cli"}`), []byte(`{}`)))

	tok, err := store.Revoke(context.Background(), "t1")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !tok.Revoked || tok.DeviceInfo["ua"] != "cli" || tok.Metadata != nil {
		t.Fatalf("unexpected token: %+v", tok)
	}

	mock.ExpectQuery(update).WithArgs("t1", fixedNow).WillReturnRows(tokenRows())
	mock.ExpectQuery(regexp.QuoteMeta(`FROM tokens WHERE id = $1`)).
		WithArgs("t1").
		WillReturnRows(tokenRows().AddRow("t1", "u1", "refresh", "v1", fixedNow.Add(time.Hour), fixedNow, true, fixedNow, []byte(`{}`), []byte(`{}`)))

	tok, err = store.Revoke(context.Background(), "t1")
	if !errors.Is(err, model.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if tok == nil || tok.ID != "t1" {
		t.Fatal("already revoked record must be returned")
	}
}

func TestTokenRevokeUnknown(t *testing.T) {
	db, mock := newMock(t)
	store := NewTokenStore(db)

	mock.ExpectQuery(`UPDATE tokens SET revoked`).WillReturnRows(tokenRows())
	mock.ExpectQuery(regexp.QuoteMeta(`FROM tokens WHERE id = $1`)).WithArgs("nope").WillReturnRows(tokenRows())

	if _, err := store.Revoke(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	store := NewTokenStore(db)

	mock.ExpectQuery(`INSERT INTO tokens`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.Create(context.Background(), &model.Token{ID: "t1", UserID: "u1", Type: model.TokenRefresh, Value: "v1", ExpiresAt: fixedNow})
	if !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestTokenRevokeAllForUser(t *testing.T) {
	db, mock := newMock(t)
	store := NewTokenStore(db)
	store.now = func() time.Time { return fixedNow }

	mock.ExpectExec(`UPDATE tokens SET revoked = true`).
		WithArgs("u1", "refresh", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RevokeAllForUser(context.Background(), "u1", model.TokenRefresh)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestTokenCleanExpired(t *testing.T) {
	db, mock := newMock(t)
	store := NewTokenStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM tokens WHERE expires_at < $1`)).
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.CleanExpired(context.Background(), fixedNow)
	if err != nil || n != 7 {
		t.Fatalf("clean expired: %d %v", n, err)
	}
}

func TestUserLookup(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1 AND status <> 'deleted'`)).
		WithArgs("ada@example.com").
		WillReturnRows(userRows().AddRow("u1", "ada@example.com", nil, "Ada", "Lovelace", "$argon2id$...", []byte("{student,teacher}"), "active",
			nil, nil, nil, nil, true, false, nil, fixedNow, fixedNow))

	u, err := store.GetByEmail(context.Background(), " ADA@example.com ")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if len(u.Roles) != 2 || u.Roles[1] != model.RoleTeacher || !u.IsActive() {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).WithArgs("missing").WillReturnRows(userRows())
	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := store.Create(context.Background(), &model.User{ID: "u1", Email: "ada@example.com", Roles: []model.Role{model.RoleStudent}})
	if !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestConnectionUpdateTokensKeepsRefresh(t *testing.T) {
	db, mock := newMock(t)
	store := NewFederationStore(db)
	store.now = func() time.Time { return fixedNow }

	mock.ExpectQuery(regexp.QuoteMeta(`refresh_token = COALESCE($3, refresh_token)`)).
		WithArgs("c1", "new-access", nil, nil, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "provider", "provider_user_id", "access_token", "refresh_token",
			"token_expires_at", "profile_data", "created_at", "updated_at", "last_used_at"}).
			AddRow("c1", "u1", "google", "g-1", "new-access", "old-refresh", nil, []byte(`{"sub":"g-1"}`), fixedNow, fixedNow, fixedNow))

	conn, err := store.UpdateTokens(context.Background(), "c1", "new-access", nil, nil)
	if err != nil {
		t.Fatalf("update tokens: %v", err)
	}
	if conn.RefreshToken == nil || *conn.RefreshToken != "old-refresh" || conn.ProfileData["sub"] != "g-1" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
	if conn.LastUsedAt == nil || !conn.LastUsedAt.Equal(fixedNow) {
		t.Fatal("last_used_at not bumped")
	}
}

func TestJSONMapScan(t *testing.T) {
	var m jsonMap
	if err := m.Scan(nil); err != nil || m != nil {
		t.Fatalf("nil scan: %v %v", m, err)
	}
	if err := m.Scan(`{"a":1}`); err != nil || m["a"] != float64(1) {
		t.Fatalf("string scan: %v %v", m, err)
	}
	if err := m.Scan(42); err == nil {
		t.Fatal("expected error for unsupported source")
	}
}
