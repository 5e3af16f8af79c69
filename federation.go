package lmsauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/lmsauth/model"
	"go.uber.org/zap"
)

// FederationEngine signs users in with an OAuth2 provider access token,
// creating or linking local accounts as needed. Obtain one from
// [Engine.Federation].
type FederationEngine struct {
	engine    *Engine
	store     FederationStore
	providers map[Provider]ProviderVerifier
	timeout   time.Duration
}

// SocialLogin verifies accessToken with provider and issues a token pair.
//
// An identity that is already linked always resolves to its linked user, even
// when the provider now reports a different email. An unlinked identity is
// linked to the user owning the reported email, or a new user is created
// (ACTIVE when the provider vouches for the email, PENDING_VERIFICATION
// otherwise). device defaults to {"source": "oauth_<provider>"}.
func (f *FederationEngine) SocialLogin(ctx context.Context, provider Provider, accessToken string, device DeviceInfo) (*User, *TokenPair, error) {
	user, err := f.resolve(ctx, provider, accessToken)
	e := f.engine
	if err != nil {
		ae := AsAuthError(err)
		if ae.Kind == KindInternal {
			e.logger.Error("social login failed", zap.String("provider", string(provider)), zap.Error(err))
		}
		userID := ""
		if user != nil {
			userID = user.ID
		}
		e.metricInc(MetricSocialLoginFailure)
		e.emitProviderAudit(ctx, auditEventSocialLogin, false, userID, string(provider), ae, nil)
		return nil, nil, ae
	}

	if len(device) == 0 {
		device = DeviceInfo{"source": "oauth_" + string(provider)}
	}
	pair, err := e.issueTokenPair(ctx, user, device)
	if err != nil {
		e.logger.Error("social login token issue failed", zap.String("user_id", user.ID), zap.Error(err))
		e.metricInc(MetricSocialLoginFailure)
		ae := withCause(ErrInternal, err)
		e.emitProviderAudit(ctx, auditEventSocialLogin, false, user.ID, string(provider), ae, nil)
		return nil, nil, ae
	}

	e.metricInc(MetricSocialLoginSuccess)
	e.emitProviderAudit(ctx, auditEventSocialLogin, true, user.ID, string(provider), nil, nil)
	return user, pair, nil
}

// resolve returns the user for the provider identity.
func (f *FederationEngine) resolve(ctx context.Context, provider Provider, accessToken string) (*User, error) {
	verifier, ok := f.providers[provider]
	if !ok {
		return nil, &AuthError{
			Kind:    KindInvalidToken,
			Message: fmt.Sprintf("Provider %s is not supported", provider),
			Status:  ErrInvalidToken.Status,
		}
	}

	identity, err := f.verify(ctx, verifier, accessToken)
	if err != nil {
		return nil, withCause(ErrInvalidToken, err)
	}
	if identity.AccessToken == "" {
		identity.AccessToken = accessToken
	}

	conn, err := f.store.GetByProviderUserID(ctx, provider, identity.ProviderUserID)
	switch {
	case err == nil:
		return f.loginLinked(ctx, conn, identity)
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("lookup connection: %w", err)
	}

	email := model.NormalizeEmail(identity.Email)
	if email == "" {
		return nil, &AuthError{
			Kind:    KindInvalidToken,
			Message: "OAuth provider did not provide an email address",
			Status:  ErrInvalidToken.Status,
		}
	}

	existing, err := f.engine.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return f.link(ctx, existing, provider, identity)
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	return f.createUser(ctx, provider, email, identity)
}

// verify bounds the provider call by the configured timeout. There is no retry.
func (f *FederationEngine) verify(ctx context.Context, v ProviderVerifier, accessToken string) (*ProviderIdentity, error) {
	if accessToken == "" {
		return nil, errors.New("empty provider token")
	}
	vctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	identity, err := v.Verify(vctx, accessToken)
	if err != nil {
		return nil, err
	}
	if identity == nil || identity.ProviderUserID == "" {
		return nil, errors.New("provider returned no user id")
	}
	return identity, nil
}

func (f *FederationEngine) loginLinked(ctx context.Context, conn *OAuth2Connection, identity *ProviderIdentity) (*User, error) {
	if _, err := f.store.UpdateTokens(ctx, conn.ID, identity.AccessToken, identity.RefreshToken, identity.ExpiresAt); err != nil {
		return nil, fmt.Errorf("update connection tokens: %w", err)
	}

	user, err := f.engine.users.GetByID(ctx, conn.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, &AuthError{
				Kind:    KindInvalidToken,
				Message: "User not found for existing OAuth connection",
				Status:  ErrInvalidToken.Status,
				cause:   err,
			}
		}
		return nil, fmt.Errorf("lookup linked user: %w", err)
	}
	return f.admit(ctx, user)
}

// link attaches the identity to an existing account. The connection is stored
// before the status check, so a later activation needs no second link. An
// account holds at most one connection per provider: when it is already linked
// to another identity of the same provider the login is refused.
func (f *FederationEngine) link(ctx context.Context, user *User, provider Provider, identity *ProviderIdentity) (*User, error) {
	current, err := f.store.GetByUserAndProvider(ctx, user.ID, provider)
	switch {
	case err == nil:
		if current.ProviderUserID == identity.ProviderUserID {
			return f.loginLinked(ctx, current, identity)
		}
		return user, identityConflictError(provider)
	case !errors.Is(err, model.ErrNotFound):
		return user, fmt.Errorf("lookup user connection: %w", err)
	}

	if _, err := f.store.Create(ctx, f.newConnection(user.ID, provider, identity)); err != nil {
		if !errors.Is(err, model.ErrDuplicate) {
			return user, fmt.Errorf("create connection: %w", err)
		}
		return f.linkedConcurrently(ctx, user, provider, identity)
	}
	f.engine.metricInc(MetricSocialAccountLinked)
	f.engine.emitProviderAudit(ctx, auditEventSocialAccountLinked, true, user.ID, string(provider), nil, nil)
	return f.admit(ctx, user)
}

// linkedConcurrently resolves a duplicate on connection create. Either the same
// identity was linked first by another request, or the user got a different
// identity of this provider in the meantime.
func (f *FederationEngine) linkedConcurrently(ctx context.Context, user *User, provider Provider, identity *ProviderIdentity) (*User, error) {
	conn, err := f.store.GetByProviderUserID(ctx, provider, identity.ProviderUserID)
	switch {
	case err == nil:
		return f.loginLinked(ctx, conn, identity)
	case errors.Is(err, model.ErrNotFound):
		return user, identityConflictError(provider)
	default:
		return user, fmt.Errorf("re-read connection: %w", err)
	}
}

func identityConflictError(provider Provider) *AuthError {
	return &AuthError{
		Kind:    KindInvalidToken,
		Message: fmt.Sprintf("Account is already linked to a different %s identity", provider),
		Status:  ErrInvalidToken.Status,
	}
}

func (f *FederationEngine) createUser(ctx context.Context, provider Provider, email string, identity *ProviderIdentity) (*User, error) {
	e := f.engine
	now := e.now()
	status := model.StatusPendingVerification
	if identity.EmailVerified {
		status = model.StatusActive
	}
	user := &User{
		ID:              e.newID(),
		Email:           email,
		FirstName:       identity.FirstName,
		LastName:        identity.LastName,
		Roles:           []Role{e.config.Account.DefaultRole},
		Status:          status,
		ProfileImageURL: optionalString(identity.Picture),
		EmailVerified:   identity.EmailVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := e.users.Create(ctx, user)
	if err != nil {
		if !errors.Is(err, model.ErrDuplicate) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		// Same email registered concurrently: link instead.
		existing, err := e.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("re-read user: %w", err)
		}
		return f.link(ctx, existing, provider, identity)
	}

	if _, err := f.store.Create(ctx, f.newConnection(created.ID, provider, identity)); err != nil {
		if !errors.Is(err, model.ErrDuplicate) {
			return nil, fmt.Errorf("create connection: %w", err)
		}
		return f.linkedConcurrently(ctx, created, provider, identity)
	}
	e.metricInc(MetricSocialAccountCreated)
	return created, nil
}

// admit requires an ACTIVE account and records the login time.
func (f *FederationEngine) admit(ctx context.Context, user *User) (*User, error) {
	if !user.IsActive() {
		return user, userNotActiveError(user.Status)
	}
	now := f.engine.now()
	updated, err := f.engine.users.UpdateLastLogin(ctx, user.ID, now)
	if err != nil {
		f.engine.warn("last_login update failed", "user_id", user.ID, "error", err)
		user.LastLogin = &now
		return user, nil
	}
	return updated, nil
}

func (f *FederationEngine) newConnection(userID string, provider Provider, identity *ProviderIdentity) *OAuth2Connection {
	now := f.engine.now()
	return &OAuth2Connection{
		ID:             f.engine.newID(),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: identity.ProviderUserID,
		AccessToken:    optionalString(identity.AccessToken),
		RefreshToken:   identity.RefreshToken,
		TokenExpiresAt: identity.ExpiresAt,
		ProfileData:    identity.Profile,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastUsedAt:     &now,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
