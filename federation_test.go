package lmsauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth/store/memstore"
)

type fakeVerifier struct {
	mu       sync.Mutex
	identity ProviderIdentity
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeVerifier) Verify(ctx context.Context, accessToken string) (*ProviderIdentity, error) {
	f.mu.Lock()
	f.calls++
	identity, err, delay := f.identity, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (f *fakeVerifier) set(identity ProviderIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = identity
}

type federationEnv struct {
	*testEnv
	connections *memstore.FederationStore
	google      *fakeVerifier
}

func newFederationEnv(t *testing.T, configure ...func(*Builder)) *federationEnv {
	t.Helper()

	fed := &federationEnv{
		connections: memstore.NewFederationStore(),
		google: &fakeVerifier{identity: ProviderIdentity{
			ProviderUserID: "g-123",
			Email:          "ada@example.com",
			EmailVerified:  true,
			FirstName:      "Ada",
			LastName:       "Lovelace",
			Picture:        "https://example.com/ada.png",
		}},
	}
	configure = append([]func(*Builder){func(b *Builder) {
		b.WithFederationStore(fed.connections).WithProvider(ProviderGoogle, fed.google)
	}}, configure...)
	fed.testEnv = newTestEnv(t, configure...)
	return fed
}

func TestSocialLoginCreatesActiveUser(t *testing.T) {
	env := newFederationEnv(t)
	ctx := context.Background()

	user, pair, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "provider-token", nil)
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	if user.Status != StatusActive || !user.EmailVerified {
		t.Fatalf("expected active verified user, got %+v", user)
	}
	if user.PasswordHash != "" {
		t.Fatal("federated user must not have a password")
	}
	if user.ProfileImageURL == nil || *user.ProfileImageURL != "https://example.com/ada.png" {
		t.Fatalf("picture not stored: %v", user.ProfileImageURL)
	}

	stored, err := env.tokens.GetByValue(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh record: %v", err)
	}
	if stored.DeviceInfo["source"] != "oauth_"+string(ProviderGoogle) {
		t.Fatalf("unexpected default device info: %v", stored.DeviceInfo)
	}

	conn, err := env.connections.GetByProviderUserID(ctx, ProviderGoogle, "g-123")
	if err != nil {
		t.Fatalf("connection: %v", err)
	}
	if conn.UserID != user.ID || conn.AccessToken == nil || *conn.AccessToken != "provider-token" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
	if env.engine.metrics.Value(MetricSocialAccountCreated) != 1 {
		t.Fatal("account creation not counted")
	}
}

func TestSocialLoginIsIdempotent(t *testing.T) {
	env := newFederationEnv(t)
	ctx := context.Background()

	first, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t1", nil)
	if err != nil {
		t.Fatalf("first social login: %v", err)
	}
	second, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t2", DeviceInfo{"ua": "phone"})
	if err != nil {
		t.Fatalf("second social login: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same user, got %s and %s", first.ID, second.ID)
	}
	if env.users.Count() != 1 || env.connections.Count() != 1 {
		t.Fatalf("duplicates created: users=%d connections=%d", env.users.Count(), env.connections.Count())
	}
	if second.LastLogin == nil {
		t.Fatal("returning user must have last_login bumped")
	}

	conn, err := env.connections.GetByProviderUserID(ctx, ProviderGoogle, "g-123")
	if err != nil {
		t.Fatalf("connection: %v", err)
	}
	if conn.AccessToken == nil || *conn.AccessToken != "t2" {
		t.Fatalf("provider token not refreshed: %v", conn.AccessToken)
	}
}

func TestSocialLoginLinksExistingAccount(t *testing.T) {
	env := newFederationEnv(t)
	existing := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	user, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t1", nil)
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	if user.ID != existing.ID {
		t.Fatalf("expected link to %s, got %s", existing.ID, user.ID)
	}
	if user.PasswordHash == "" {
		t.Fatal("linking must not clear the password")
	}
	if env.users.Count() != 1 {
		t.Fatal("linking must not create a user")
	}
	if env.engine.metrics.Value(MetricSocialAccountLinked) != 1 {
		t.Fatal("link not counted")
	}
}

func TestSocialLoginConnectionWinsOverEmail(t *testing.T) {
	env := newFederationEnv(t)
	ctx := context.Background()

	first, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t1", nil)
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	other := env.seedUser(t, "grace@example.com", StatusActive)

	env.google.set(ProviderIdentity{
		ProviderUserID: "g-123",
		Email:          "grace@example.com",
		EmailVerified:  true,
	})
	user, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t2", nil)
	if err != nil {
		t.Fatalf("social login after email change: %v", err)
	}
	if user.ID != first.ID || user.ID == other.ID {
		t.Fatalf("linked connection must win, got %s", user.ID)
	}
}

func TestSocialLoginRefusesSecondIdentityOfSameProvider(t *testing.T) {
	env := newFederationEnv(t)
	existing := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	if _, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t1", nil); err != nil {
		t.Fatalf("first social login: %v", err)
	}

	env.google.set(ProviderIdentity{
		ProviderUserID: "g-999",
		Email:          "ada@example.com",
		EmailVerified:  true,
	})
	_, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t2", nil)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Status != 401 {
		t.Fatalf("expected invalid token for a conflicting identity, got %v", err)
	}

	conns, err := env.connections.ListByUser(ctx, existing.ID)
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(conns) != 1 || conns[0].ProviderUserID != "g-123" {
		t.Fatalf("user must keep exactly its first google connection, got %+v", conns)
	}
	if _, err := env.connections.GetByProviderUserID(ctx, ProviderGoogle, "g-999"); err == nil {
		t.Fatal("conflicting identity must not be stored")
	}
}

type racingFederationStore struct {
	*memstore.FederationStore
	onCreate func()
}

func (s *racingFederationStore) Create(ctx context.Context, conn *OAuth2Connection) (*OAuth2Connection, error) {
	if s.onCreate != nil {
		fn := s.onCreate
		s.onCreate = nil
		fn()
	}
	return s.FederationStore.Create(ctx, conn)
}

func TestSocialLoginConflictDuringLinkRace(t *testing.T) {
	store := &racingFederationStore{FederationStore: memstore.NewFederationStore()}
	env := newFederationEnv(t, func(b *Builder) { b.WithFederationStore(store) })
	existing := env.seedUser(t, "ada@example.com", StatusActive)
	ctx := context.Background()

	// Another request links a different google identity between lookup and create.
	store.onCreate = func() {
		_, _ = store.FederationStore.Create(ctx, &OAuth2Connection{
			ID: "other", UserID: existing.ID, Provider: ProviderGoogle, ProviderUserID: "g-777",
		})
	}

	_, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t1", nil)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected only the racing connection, got %d", store.Count())
	}
}

func TestSocialLoginUnverifiedEmail(t *testing.T) {
	env := newFederationEnv(t)
	env.google.set(ProviderIdentity{ProviderUserID: "g-9", Email: "new@example.com"})

	user, pair, err := env.engine.Federation().SocialLogin(context.Background(), ProviderGoogle, "t", nil)
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	if user.Status != StatusPendingVerification || user.EmailVerified {
		t.Fatalf("expected pending user, got %+v", user)
	}
	if pair == nil {
		t.Fatal("new federated user receives tokens")
	}
}

func TestSocialLoginRejectsInactiveLinkedUser(t *testing.T) {
	env := newFederationEnv(t)
	ctx := context.Background()

	user, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t1", nil)
	if err != nil {
		t.Fatalf("social login: %v", err)
	}
	if err := env.engine.SuspendAccount(ctx, user.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, _, err := env.engine.Federation().SocialLogin(ctx, ProviderGoogle, "t2", nil); !errors.Is(err, ErrUserNotActive) {
		t.Fatalf("expected ErrUserNotActive, got %v", err)
	}
}

func TestSocialLoginFailures(t *testing.T) {
	env := newFederationEnv(t)
	ctx := context.Background()
	fe := env.engine.Federation()

	_, _, err := fe.SocialLogin(ctx, ProviderApple, "t", nil)
	ae := AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Message != "Provider apple is not supported" {
		t.Fatalf("unsupported provider: %v", err)
	}

	if _, _, err := fe.SocialLogin(ctx, ProviderGoogle, "", nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty provider token: %v", err)
	}

	env.google.set(ProviderIdentity{ProviderUserID: "g-5"})
	_, _, err = fe.SocialLogin(ctx, ProviderGoogle, "t", nil)
	ae = AsAuthError(err)
	if ae == nil || ae.Kind != KindInvalidToken || ae.Message != "OAuth provider did not provide an email address" {
		t.Fatalf("missing email: %v", err)
	}

	env.google.mu.Lock()
	env.google.err = errors.New("token revoked upstream")
	env.google.mu.Unlock()
	if _, _, err := fe.SocialLogin(ctx, ProviderGoogle, "t", nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("verifier failure: %v", err)
	}
	if env.users.Count() != 0 {
		t.Fatal("failed social logins must not create users")
	}
}

func TestSocialLoginProviderTimeout(t *testing.T) {
	env := newFederationEnv(t, func(b *Builder) {
		cfg := validTestConfig()
		cfg.Federation.ProviderTimeout = 20 * time.Millisecond
		b.WithConfig(cfg)
	})
	env.google.mu.Lock()
	env.google.delay = time.Second
	env.google.mu.Unlock()

	start := time.Now()
	_, _, err := env.engine.Federation().SocialLogin(context.Background(), ProviderGoogle, "t", nil)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on timeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("provider call was not bounded by the timeout")
	}
	if env.google.calls != 1 {
		t.Fatalf("provider calls must not be retried, got %d", env.google.calls)
	}
}

func TestSocialLoginConcurrentFirstLogin(t *testing.T) {
	env := newFederationEnv(t)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			user, _, err := env.engine.Federation().SocialLogin(context.Background(), ProviderGoogle, "t", nil)
			if err != nil {
				t.Errorf("social login: %v", err)
				return
			}
			ids <- user.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("concurrent first logins resolved to different users: %s and %s", first, id)
		}
	}
	if env.users.Count() != 1 || env.connections.Count() != 1 {
		t.Fatalf("duplicates created: users=%d connections=%d", env.users.Count(), env.connections.Count())
	}
}
