package lmsauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/model"
	"github.com/MrEthical07/lmsauth/store/memstore"
)

const testPassword = "Correct-horse-9!"

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) last(t *testing.T, purpose NotificationPurpose) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Purpose == purpose {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", purpose)
	return Notification{}
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	engine   *Engine
	users    *memstore.UserStore
	tokens   *memstore.TokenStore
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, configure ...func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    memstore.NewUserStore(),
		tokens:   memstore.NewTokenStore(),
		notifier: &recordingNotifier{},
	}
	b := New().
		WithConfig(validTestConfig()).
		WithUserStore(env.users).
		WithTokenStore(env.tokens).
		WithNotifier(env.notifier)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) seedUser(t *testing.T, email string, status UserStatus) *User {
	t.Helper()

	hash, err := env.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	u, err := env.users.Create(context.Background(), &User{
		ID:            env.engine.newID(),
		Email:         email,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		PasswordHash:  hash,
		Roles:         []Role{RoleStudent},
		Status:        status,
		EmailVerified: status == StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestLoginRefreshOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	user, pair, err := env.engine.Login(ctx, "  Ada@Example.com ", testPassword, DeviceInfo{"ua": "test"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.LastLogin == nil {
		t.Fatal("expected last_login to be set")
	}
	if pair.TokenType != "bearer" || pair.ExpiresIn != int64((30*time.Minute)/time.Second) {
		t.Fatalf("unexpected pair metadata: %+v", pair)
	}

	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	_, err = env.engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on reuse, got %v", err)
	}
	if got := env.engine.metrics.Value(MetricRefreshReuseDetected); got != 1 {
		t.Fatalf("reuse metric = %d", got)
	}

	stored, err := env.tokens.GetByValue(ctx, next.RefreshToken)
	if err != nil {
		t.Fatalf("lookup rotated token: %v", err)
	}
	if stored.DeviceInfo["ua"] != "test" {
		t.Fatalf("device info not carried over: %v", stored.DeviceInfo)
	}
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, _, unknown := env.engine.Login(ctx, "nobody@example.com", testPassword, nil)
	_, _, wrong := env.engine.Login(ctx, "ada@example.com", "Wrong-password-1!", nil)

	a, b := AsAuthError(unknown), AsAuthError(wrong)
	if a == nil || b == nil {
		t.Fatalf("expected auth errors, got %v / %v", unknown, wrong)
	}
	if a.Kind != KindInvalidCredentials || a.Kind != b.Kind || a.Message != b.Message || a.Status != b.Status {
		t.Fatalf("login failures differ: %+v vs %+v", a, b)
	}
	if a.Unwrap() != nil || b.Unwrap() != nil {
		t.Fatal("login failures must not carry a distinguishing cause")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "pending@example.com", StatusPendingVerification)

	_, _, err := env.engine.Login(context.Background(), "pending@example.com", testPassword, nil)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindUserNotActive || ae.Status != 403 {
		t.Fatalf("expected user not active, got %v", err)
	}
	if ae.Details["status"] != string(StatusPendingVerification) {
		t.Fatalf("expected status detail, got %v", ae.Details)
	}
	if env.tokens.Writes() != 0 {
		t.Fatal("no token may be stored for an inactive user")
	}
}

func TestLoginKeepsOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, first, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("first session must survive a second login: %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)

	_, pair, err := env.engine.Login(context.Background(), "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrTokenExpired) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshRejectsUnknownAndAccessTokens(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	if _, err := env.engine.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestRefreshRevokesRecordWithForgedValue(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, err := env.tokens.Create(ctx, &Token{
		ID:        "forged",
		UserID:    u.ID,
		Type:      model.TokenRefresh,
		Value:     "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0.",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0."); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	stored, err := env.tokens.GetByID(ctx, "forged")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !stored.Revoked {
		t.Fatal("record whose value fails verification must be revoked")
	}
}

func TestRefreshRevokesRecordOwnedByAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "ada@example.com", StatusActive)
	grace := env.seedUser(t, "grace@example.com", StatusActive)
	ctx := context.Background()

	value, err := env.engine.jwtManager.Sign(&jwt.RefreshClaims{}, ada.ID, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = env.tokens.Create(ctx, &Token{
		ID:        "mismatched",
		UserID:    grace.ID,
		Type:      model.TokenRefresh,
		Value:     value,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if valid, _ := env.tokens.IsValid(ctx, value); valid {
		t.Fatal("record whose owner differs from the signed subject must be revoked")
	}
}

type contendedTokenStore struct {
	*memstore.TokenStore
}

func (s contendedTokenStore) Revoke(ctx context.Context, id string) (*Token, error) {
	return nil, model.ErrContention
}

func TestRefreshUnderContentionIsInvalidToken(t *testing.T) {
	tokens := memstore.NewTokenStore()
	env := newTestEnv(t, func(b *Builder) {
		b.WithTokenStore(contendedTokenStore{tokens})
	})
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err = env.engine.Refresh(ctx, pair.RefreshToken)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Status != 401 {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if tokens.Writes() != 1 {
		t.Fatalf("losing refresh must not issue a pair, writes=%d", tokens.Writes())
	}
}

func TestSingleUseTokensAreNotInterchangeable(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	if err := env.engine.ResetPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset request: %v", err)
	}
	reset := env.notifier.last(t, PurposeResetPassword).TokenValue

	err := env.engine.VerifyEmail(ctx, reset)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Message != "Invalid verification token" {
		t.Fatalf("reset token must not verify an email, got %v", err)
	}
	if valid, _ := env.tokens.IsValid(ctx, reset); valid {
		t.Fatal("reset token presented to verification must be revoked")
	}
	const next = "Another-horse-7?"
	if err := env.engine.ConfirmResetPassword(ctx, reset, next, next); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("revoked reset token must report expiry, got %v", err)
	}

	_, _, err = env.engine.Register(ctx, RegisterRequest{Email: "grace@example.com", Password: testPassword, ConfirmPassword: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	verification := env.notifier.last(t, PurposeEmailVerification).TokenValue

	err = env.engine.ConfirmResetPassword(ctx, verification, next, next)
	ae = AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Message != "Invalid reset token" {
		t.Fatalf("verification token must not reset a password, got %v", err)
	}
	if valid, _ := env.tokens.IsValid(ctx, verification); valid {
		t.Fatal("verification token presented to reset must be revoked")
	}
	if err := env.engine.VerifyEmail(ctx, verification); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("revoked verification token must report expiry, got %v", err)
	}
}

func TestRefreshRejectsSuspendedUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.users.UpdateStatus(ctx, u.ID, StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	_, err = env.engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("expected ErrUserNotActive, got %v", err)
	}
	if valid, _ := env.tokens.IsValid(ctx, pair.RefreshToken); valid {
		t.Fatal("refresh token of an inactive user must be revoked")
	}
}

func TestResetPasswordUnknownEmailWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)

	if err := env.engine.ResetPassword(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown email must succeed silently, got %v", err)
	}
	if env.tokens.Writes() != 0 {
		t.Fatalf("expected no token writes, got %d", env.tokens.Writes())
	}
	if env.notifier.count() != 0 {
		t.Fatal("no notification may be sent for an unknown email")
	}
}

func TestResetPasswordRevokesRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.ResetPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset request: %v", err)
	}
	note := env.notifier.last(t, PurposeResetPassword)
	if note.User == nil || note.User.Email != "ada@example.com" || note.TokenValue == "" {
		t.Fatalf("unexpected notification: %+v", note)
	}

	const next = "Another-horse-7?"
	if err := env.engine.ConfirmResetPassword(ctx, note.TokenValue, next, next); err != nil {
		t.Fatalf("confirm reset: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("refresh tokens issued before the reset must be revoked")
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", next, nil); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	err = env.engine.ConfirmResetPassword(ctx, note.TokenValue, next, next)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("consumed reset token must report expiry, got %v", err)
	}
}

func TestConfirmResetPasswordValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	if err := env.engine.ResetPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("reset request: %v", err)
	}
	token := env.notifier.last(t, PurposeResetPassword).TokenValue

	err := env.engine.ConfirmResetPassword(ctx, token, "Another-horse-7?", "Different-horse-7?")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected policy error for mismatch, got %v", err)
	}

	err = env.engine.ConfirmResetPassword(ctx, token, "short", "short")
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindPasswordPolicy {
		t.Fatalf("expected policy error, got %v", err)
	}
	if violations, _ := ae.Details["validation_errors"].([]string); len(violations) == 0 {
		t.Fatalf("expected violations, got %v", ae.Details)
	}

	// The token survives failed policy checks.
	if err := env.engine.ConfirmResetPassword(ctx, token, "Another-horse-7?", "Another-horse-7?"); err != nil {
		t.Fatalf("confirm after policy failure: %v", err)
	}

	err = env.engine.ConfirmResetPassword(ctx, "garbage", "Another-horse-7?", "Another-horse-7?")
	ae = AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Message != "Invalid reset token" {
		t.Fatalf("expected invalid reset token, got %v", err)
	}
}

func TestRegisterThenVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, pair, err := env.engine.Register(ctx, RegisterRequest{
		Email:           "New@Example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Grace",
		LastName:        "Hopper",
		Username:        "grace",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Status != StatusPendingVerification || user.EmailVerified {
		t.Fatalf("unexpected new user state: %+v", user)
	}
	if len(user.Roles) != 1 || user.Roles[0] != RoleStudent {
		t.Fatalf("unexpected roles: %v", user.Roles)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if pair == nil || pair.RefreshToken == "" {
		t.Fatal("register must issue a token pair")
	}
	stored, err := env.tokens.GetByValue(ctx, pair.RefreshToken)
	if err != nil || stored.DeviceInfo["source"] != "registration" {
		t.Fatalf("registration refresh token missing device source: %v %v", stored, err)
	}

	if _, _, err := env.engine.Login(ctx, "new@example.com", testPassword, nil); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("pending user must not log in, got %v", err)
	}

	token := env.notifier.last(t, PurposeEmailVerification).TokenValue
	if err := env.engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	verified, err := env.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if verified.Status != StatusActive || !verified.EmailVerified {
		t.Fatalf("user not activated: %+v", verified)
	}
	if _, _, err := env.engine.Login(ctx, "new@example.com", testPassword, nil); err != nil {
		t.Fatalf("login after verification: %v", err)
	}

	if err := env.engine.VerifyEmail(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("second verification must fail, got %v", err)
	}
}

type refreshlessTokenStore struct {
	*memstore.TokenStore
}

func (s refreshlessTokenStore) Create(ctx context.Context, tok *Token) (*Token, error) {
	if tok.Type == model.TokenRefresh {
		return nil, errors.New("token store unavailable")
	}
	return s.TokenStore.Create(ctx, tok)
}

func TestRegisterPairFailureStillSendsVerification(t *testing.T) {
	tokens := memstore.NewTokenStore()
	env := newTestEnv(t, func(b *Builder) {
		b.WithTokenStore(refreshlessTokenStore{tokens})
	})
	ctx := context.Background()

	_, _, err := env.engine.Register(ctx, RegisterRequest{Email: "new@example.com", Password: testPassword, ConfirmPassword: testPassword})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	token := env.notifier.last(t, PurposeEmailVerification).TokenValue
	if err := env.engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	u, err := env.users.GetByEmail(ctx, "new@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Status != StatusActive || !u.EmailVerified {
		t.Fatalf("user must be recoverable through verification, got %+v", u)
	}
}

func TestRegisterAfterDeleteReusesEmail(t *testing.T) {
	env := newTestEnv(t)
	old := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	if err := env.engine.DeleteAccount(ctx, old.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	user, _, err := env.engine.Register(ctx, RegisterRequest{Email: "ada@example.com", Password: testPassword, ConfirmPassword: testPassword})
	if err != nil {
		t.Fatalf("email of a deleted account must be reusable: %v", err)
	}
	if user.ID == old.ID {
		t.Fatal("registration must create a new account")
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("login must resolve to the new pending account, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, _, err := env.engine.Register(ctx, RegisterRequest{
		Email:           "ADA@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
	if env.engine.metrics.Value(MetricRegisterDuplicate) != 1 {
		t.Fatal("duplicate registration not counted")
	}
}

func TestRegisterValidatesBeforeStore(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:           "new@example.com",
		Password:        "weak",
		ConfirmPassword: "weak",
	})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if env.users.Count() != 0 || env.tokens.Writes() != 0 {
		t.Fatal("policy failures must not write")
	}
}

func TestRequestEmailVerificationIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	env.seedUser(t, "pending@example.com", StatusPendingVerification)
	ctx := context.Background()

	if err := env.engine.RequestEmailVerification(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := env.engine.RequestEmailVerification(ctx, "ada@example.com"); err != nil {
		t.Fatalf("verified email: %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatal("no notification expected for unknown or verified accounts")
	}

	if err := env.engine.RequestEmailVerification(ctx, "pending@example.com"); err != nil {
		t.Fatalf("pending email: %v", err)
	}
	env.notifier.last(t, PurposeEmailVerification)
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	env.notifier.err = errors.New("smtp down")

	if err := env.engine.ResetPassword(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("notifier failures must not surface, got %v", err)
	}
	if env.engine.metrics.Value(MetricNotifyFailure) != 1 {
		t.Fatal("notifier failure not counted")
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const next = "Another-horse-7?"
	err = env.engine.ChangePassword(ctx, u.ID, "Wrong-horse-1!", next, next)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidCredentials || ae.Message != "Current password is incorrect" {
		t.Fatalf("expected incorrect current password, got %v", err)
	}

	if err := env.engine.ChangePassword(ctx, u.ID, testPassword, next, next); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("existing sessions must be revoked")
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", next, nil); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("repeated logout must succeed, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("logged out token must not refresh")
	}
	if err := env.engine.Logout(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	n, err := env.engine.LogoutAll(ctx, u.ID)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", n)
	}
}

func TestValidateAccessAndCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := env.engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != u.ID || claims.Email != "ada@example.com" || len(claims.Roles) != 1 || claims.Roles[0] != string(RoleStudent) {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := env.engine.ValidateAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not validate as access, got %v", err)
	}

	current, err := env.engine.CurrentUser(ctx, pair.AccessToken)
	if err != nil || current.ID != u.ID {
		t.Fatalf("current user: %v %v", current, err)
	}

	if err := env.engine.SuspendAccount(ctx, u.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := env.engine.CurrentUser(ctx, pair.AccessToken); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("suspended user must be rejected, got %v", err)
	}
}

func TestSetUserStatusRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.engine.DeactivateAccount(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if valid, _ := env.tokens.IsValid(ctx, pair.RefreshToken); valid {
		t.Fatal("deactivation must revoke refresh tokens")
	}

	if err := env.engine.ActivateAccount(ctx, u.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil); err != nil {
		t.Fatalf("login after activation: %v", err)
	}

	if err := env.engine.SetUserStatus(ctx, "missing", StatusSuspended); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := env.engine.SetUserStatus(ctx, u.ID, "archived"); err == nil {
		t.Fatal("unknown status must be rejected")
	}
}

func TestBuilderValidation(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); err == nil {
		t.Fatal("expected missing store error")
	}

	b := New().
		WithConfig(validTestConfig()).
		WithUserStore(memstore.NewUserStore()).
		WithTokenStore(memstore.NewTokenStore()).
		WithProvider(ProviderGoogle, &fakeVerifier{})
	if _, err := b.Build(); err == nil {
		t.Fatal("providers without a federation store must be rejected")
	}

	b = New().
		WithConfig(validTestConfig()).
		WithUserStore(memstore.NewUserStore()).
		WithTokenStore(memstore.NewTokenStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if engine.Federation() != nil {
		t.Fatal("federation must be nil without a federation store")
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must not build twice")
	}

	cfg := validTestConfig()
	cfg.JWT.PrivateKey = nil
	if _, err := New().WithConfig(cfg).WithUserStore(memstore.NewUserStore()).WithTokenStore(memstore.NewTokenStore()).Build(); err == nil {
		t.Fatal("invalid config must be rejected")
	}
}

func TestAuditEventsCarryKindOnly(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, func(b *Builder) {
		cfg := validTestConfig()
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
		b.WithConfig(cfg).WithAuditSink(sink)
	})
	u := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	if _, _, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, err := env.engine.Login(ctx, "ada@example.com", "Wrong-horse-1!", nil); err == nil {
		t.Fatal("expected login failure")
	}

	want := []struct {
		eventType string
		success   bool
		userID    string
		errCode   string
	}{
		{auditEventLoginSuccess, true, u.ID, ""},
		{auditEventLoginFailure, false, "", string(KindInvalidCredentials)},
	}
	for i, w := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != w.eventType || ev.Success != w.success || ev.UserID != w.userID || ev.Error != w.errCode {
				t.Fatalf("event %d = %+v", i, ev)
			}
			if ev.IP != "203.0.113.7" {
				t.Fatalf("event %d missing client ip: %+v", i, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestEngineOverridableClock(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	_, pair, err := env.engine.Login(ctx, "ada@example.com", testPassword, nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	future := time.Now().UTC().Add(8 * 24 * time.Hour)
	env.engine.now = func() time.Time { return future }

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("stored expiry must be enforced, got %v", err)
	}
	stored, err := env.tokens.GetByValue(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !stored.Revoked {
		t.Fatal("expired refresh record must be revoked")
	}
}

func TestCleanExpiredTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	_, _ = env.tokens.Create(ctx, &Token{ID: "old", UserID: "u1", Type: model.TokenRefresh, Value: "old", ExpiresAt: past})
	_, _ = env.tokens.Create(ctx, &Token{ID: "live", UserID: "u1", Type: model.TokenRefresh, Value: "live", ExpiresAt: time.Now().Add(time.Hour)})

	n, err := env.engine.CleanExpiredTokens(ctx, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("clean: n=%d err=%v", n, err)
	}
	if env.engine.metrics.Value(MetricExpiredTokensCleaned) != 1 {
		t.Fatal("cleanup not counted")
	}
	if _, err := env.tokens.GetByID(ctx, "live"); err != nil {
		t.Fatalf("live token removed: %v", err)
	}
}
