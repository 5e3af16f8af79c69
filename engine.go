package lmsauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/flows"
	"github.com/MrEthical07/lmsauth/internal/limiters"
	"github.com/MrEthical07/lmsauth/internal/rate"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/model"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine implements credential login, registration, token rotation and the
// single-use token flows. It is safe for concurrent use once built.
type Engine struct {
	config      Config
	users       UserStore
	tokens      TokenStore
	notifier    Notifier
	jwtManager  *jwt.Manager
	hasher      *password.Multi
	policy      password.Policy
	dummyHash   string
	rateLimiter *rate.Limiter
	redis       redis.UniversalClient

	resetLimiter        *limiters.RequestLimiter
	verificationLimiter *limiters.RequestLimiter
	accountLimiter      *limiters.RequestLimiter

	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	federation *FederationEngine

	now   func() time.Time
	newID func() string
	flows flows.Deps
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Federation returns the social-login engine, or nil when no federation store
// was configured.
func (e *Engine) Federation() *FederationEngine {
	return e.federation
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

// Login authenticates email and password and issues a token pair bound to
// device. Unknown emails and wrong passwords fail identically with
// [ErrInvalidCredentials]. Other refresh tokens of the user stay valid.
func (e *Engine) Login(ctx context.Context, email, password string, device DeviceInfo) (*User, *TokenPair, error) {
	start := time.Now()
	res := flows.RunLogin(ctx, email, password, device, e.flows.Login)
	e.observeSince(MetricLoginLatency, start)

	var err error
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.ID, nil, nil)
		return res.User, res.Pair, nil
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		err = withCause(ErrRateLimited, res.Err)
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		err = withCause(ErrInvalidCredentials, nil)
	case flows.LoginFailureNotActive:
		e.metricInc(MetricLoginNotActive)
		err = userNotActiveError(res.User.Status)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("login failed", zap.Error(res.Err))
		err = withCause(ErrInternal, res.Err)
	}

	userID := ""
	if res.User != nil {
		userID = res.User.ID
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, err, nil)
	return nil, nil, err
}

// Register creates a PENDING_VERIFICATION account with the configured default
// role, issues a token pair and sends an email verification token through the
// Notifier. Password rules are checked before any store access.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*User, *TokenPair, error) {
	if err := e.enforceRequestLimit(ctx, e.accountLimiter, ""); err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, nil, err
	}

	res := flows.RunRegister(ctx, flows.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Username:        req.Username,
		OrganizationID:  req.OrganizationID,
		BranchID:        req.BranchID,
		PhoneNumber:     req.PhoneNumber,
		Role:            e.config.Account.DefaultRole,
	}, e.flows.Register)

	var err error
	switch res.Failure {
	case flows.RegisterFailureNone:
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventRegisterSuccess, true, res.User.ID, nil, nil)
		return res.User, res.Pair, nil
	case flows.RegisterFailurePolicy:
		err = passwordPolicyError(res.Violations)
	case flows.RegisterFailureInvalid:
		err = invalidRequestError(res.Field)
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricRegisterDuplicate)
		err = withCause(userExistsError(res.Field), res.Err)
	default:
		e.logger.Error("registration failed", zap.Error(res.Err))
		err = withCause(ErrInternal, res.Err)
	}

	if res.Failure != flows.RegisterFailureDuplicate {
		e.metricInc(MetricRegisterFailure)
	}
	e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
	return nil, nil, err
}

// Refresh exchanges a refresh token for a new pair and revokes the presented
// token. Each refresh token can be exchanged at most once, also under
// concurrent use.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	start := time.Now()
	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	e.observeSince(MetricRefreshLatency, start)

	var err error
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.User.ID, nil, nil)
		return res.Pair, nil
	case flows.RefreshFailureNotFound, flows.RefreshFailureWrongType, flows.RefreshFailureClaims,
		flows.RefreshFailureContended:
		err = withCause(ErrInvalidToken, res.Err)
	case flows.RefreshFailureRevoked, flows.RefreshFailureConsumed:
		e.metricInc(MetricRefreshReuseDetected)
		err = withCause(ErrTokenExpired, res.Err)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.Token.UserID, err, map[string]string{"token_id": res.Token.ID})
	case flows.RefreshFailureExpired:
		err = withCause(ErrTokenExpired, res.Err)
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		err = withCause(ErrRateLimited, res.Err)
	case flows.RefreshFailureUserNotFound:
		err = withCause(ErrUserNotFound, res.Err)
	case flows.RefreshFailureNotActive:
		err = userNotActiveError(res.User.Status)
	default:
		e.logger.Error("refresh failed", zap.Error(res.Err))
		err = withCause(ErrInternal, res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	userID := ""
	if res.Token != nil {
		userID = res.Token.UserID
	}
	e.emitAudit(ctx, auditEventRefreshFailure, false, userID, err, nil)
	return nil, err
}

// Logout revokes one refresh token. Logging out an already revoked token
// succeeds; unknown values and non-refresh tokens yield [ErrInvalidToken].
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	res := flows.RunLogout(ctx, refreshToken, e.flows.Logout)
	switch res.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, res.Token.UserID, nil, nil)
		return nil
	case flows.LogoutFailureNotFound, flows.LogoutFailureWrongType:
		return withCause(ErrInvalidToken, res.Err)
	default:
		e.logger.Error("logout failed", zap.Error(res.Err))
		return withCause(ErrInternal, res.Err)
	}
}

// LogoutAll revokes every refresh token of userID and returns how many were
// revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int64, error) {
	n, err := flows.RunLogoutAll(ctx, userID, e.flows.Logout)
	if err != nil {
		e.logger.Error("logout all failed", zap.String("user_id", userID), zap.Error(err))
		return 0, withCause(ErrInternal, err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, map[string]string{"revoked": fmt.Sprint(n)})
	return n, nil
}

// ValidateAccess verifies an access token without touching any store.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	res := flows.RunValidateAccess(accessToken, e.flows.Validate)
	if err := validateError(res); err != nil {
		return nil, err
	}
	return res.Claims, nil
}

// CurrentUser verifies an access token and loads its owner, who must still be
// ACTIVE.
func (e *Engine) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	res := flows.RunCurrentUser(ctx, accessToken, e.flows.Validate)
	if res.Failure == flows.ValidateFailureLookup {
		e.logger.Error("current user lookup failed", zap.Error(res.Err))
	}
	if err := validateError(res); err != nil {
		return nil, err
	}
	return res.User, nil
}

func validateError(res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureNone:
		return nil
	case flows.ValidateFailureExpired:
		return withCause(ErrTokenExpired, res.Err)
	case flows.ValidateFailureInvalid:
		return withCause(ErrInvalidToken, res.Err)
	case flows.ValidateFailureUserNotFound:
		return withCause(ErrUserNotFound, res.Err)
	case flows.ValidateFailureNotActive:
		return userNotActiveError(res.User.Status)
	default:
		return withCause(ErrInternal, res.Err)
	}
}

// ChangePassword replaces the password of userID after verifying current and
// revokes every refresh token of the user.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	res := flows.RunChangePassword(ctx, userID, current, next, confirm, e.flows.ChangePassword)

	var err error
	switch res.Failure {
	case flows.ChangePasswordFailureNone:
		e.metricInc(MetricPasswordChangeSuccess)
		e.emitAudit(ctx, auditEventPasswordChange, true, userID, nil, map[string]string{"revoked": fmt.Sprint(res.RevokedSessions)})
		return nil
	case flows.ChangePasswordFailurePolicy:
		err = passwordPolicyError(res.Violations)
	case flows.ChangePasswordFailureUserNotFound:
		err = withCause(ErrUserNotFound, res.Err)
	case flows.ChangePasswordFailureInvalidCurrent:
		err = &AuthError{
			Kind:    KindInvalidCredentials,
			Message: "Current password is incorrect",
			Status:  ErrInvalidCredentials.Status,
			cause:   res.Err,
		}
	default:
		e.logger.Error("password change failed", zap.String("user_id", userID), zap.Error(res.Err))
		err = withCause(ErrInternal, res.Err)
	}

	e.metricInc(MetricPasswordChangeFailure)
	e.emitAudit(ctx, auditEventPasswordChange, false, userID, err, nil)
	return err
}

// issueTokenPair signs an access and a refresh token for user and persists the
// refresh record with a copy of device.
func (e *Engine) issueTokenPair(ctx context.Context, user *User, device DeviceInfo) (*TokenPair, error) {
	access, err := e.jwtManager.Sign(&jwt.AccessClaims{
		Email:    user.Email,
		Roles:    user.RoleStrings(),
		OrgID:    deref(user.OrganizationID),
		BranchID: deref(user.BranchID),
	}, user.ID, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, expiresAt, err := e.signWithExpiry(&jwt.RefreshClaims{}, user.ID, e.config.JWT.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if _, err := e.tokens.Create(ctx, &model.Token{
		ID:         e.newID(),
		UserID:     user.ID,
		Type:       model.TokenRefresh,
		Value:      refresh,
		ExpiresAt:  expiresAt,
		CreatedAt:  e.now(),
		DeviceInfo: device.Clone(),
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
	}, nil
}

func (e *Engine) signWithExpiry(claims jwt.Claims, userID string, ttl time.Duration) (string, time.Time, error) {
	value, err := e.jwtManager.Sign(claims, userID, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return value, e.now().Add(ttl), nil
}

func (e *Engine) verifySubject(newClaims func() jwt.Claims) flows.VerifyFunc {
	return func(value string) (string, error) {
		claims := newClaims()
		if err := e.jwtManager.Verify(value, claims); err != nil {
			return "", err
		}
		return jwt.Subject(claims), nil
	}
}

func (e *Engine) verifyAccess(value string) (*AccessClaims, error) {
	var claims jwt.AccessClaims
	if err := e.jwtManager.Verify(value, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (e *Engine) notify(purpose NotificationPurpose) func(context.Context, *model.User, string) error {
	return func(ctx context.Context, user *model.User, value string) error {
		if e.notifier == nil {
			return nil
		}
		err := e.notifier.Notify(ctx, Notification{User: user.Clone(), TokenValue: value, Purpose: purpose})
		if err != nil {
			e.metricInc(MetricNotifyFailure)
		}
		return err
	}
}

func (e *Engine) warn(msg string, kv ...any) {
	e.logger.Sugar().Warnw(msg, kv...)
}

func (e *Engine) initFlowDeps() {
	isRateLimited := func(err error) bool { return errors.Is(err, rate.ErrRateLimited) }
	now := func() time.Time { return e.now() }
	newID := func() string { return e.newID() }
	hashPassword := e.hasher.Hash
	checkPolicy := e.policy.Check
	issuePair := func(ctx context.Context, user *model.User, device model.DeviceInfo) (*model.TokenPair, error) {
		return e.issueTokenPair(ctx, user, device)
	}

	e.flows.EmailVerification = flows.EmailVerificationDeps{
		Users:  e.users,
		Tokens: e.tokens,
		SignVerification: func(userID string) (string, time.Time, error) {
			return e.signWithExpiry(&jwt.VerificationClaims{}, userID, e.config.JWT.VerificationTTL)
		},
		VerifyVerification: e.verifySubject(func() jwt.Claims { return &jwt.VerificationClaims{} }),
		IsExpired:          jwt.IsExpired,
		Notify:             e.notify(PurposeEmailVerification),
		NewID:              newID,
		Now:                now,
		Warn:               e.warn,
	}

	e.flows.PasswordReset = flows.PasswordResetDeps{
		Users:  e.users,
		Tokens: e.tokens,
		SignReset: func(userID string) (string, time.Time, error) {
			return e.signWithExpiry(&jwt.ResetClaims{}, userID, e.config.JWT.ResetTTL)
		},
		VerifyReset:  e.verifySubject(func() jwt.Claims { return &jwt.ResetClaims{} }),
		IsExpired:    jwt.IsExpired,
		CheckPolicy:  checkPolicy,
		HashPassword: hashPassword,
		Notify:       e.notify(PurposeResetPassword),
		NewID:        newID,
		Now:          now,
		Warn:         e.warn,
	}

	e.flows.Login = flows.LoginDeps{
		Users:          e.users,
		VerifyPassword: e.hasher.Verify,
		NeedsUpgrade: func(encoded string) bool {
			upgrade, err := e.hasher.NeedsUpgrade(encoded)
			return err == nil && upgrade
		},
		HashPassword:        hashPassword,
		UpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		DummyHash:           e.dummyHash,
		IsRateLimited:       isRateLimited,
		ClientIPFromContext: clientIPFromContext,
		IssuePair:           issuePair,
		Now:                 now,
		Warn:                e.warn,
	}
	if e.rateLimiter != nil {
		e.flows.Login.CheckLoginRate = e.rateLimiter.CheckLogin
		e.flows.Login.IncrementLoginRate = e.rateLimiter.IncrementLogin
		e.flows.Login.ResetLoginRate = e.rateLimiter.ResetLogin
	}

	e.flows.Register = flows.RegisterDeps{
		Users:        e.users,
		CheckPolicy:  checkPolicy,
		HashPassword: hashPassword,
		NewID:        newID,
		Now:          now,
		IssuePair:    issuePair,
		IssueVerification: func(ctx context.Context, user *model.User) error {
			res := flows.RunIssueEmailVerification(ctx, user, e.flows.EmailVerification)
			if res.Failure != flows.SingleUseFailureNone {
				return res.Err
			}
			e.metricInc(MetricEmailVerificationRequest)
			return nil
		},
		Warn: e.warn,
	}

	e.flows.Refresh = flows.RefreshDeps{
		Tokens:        e.tokens,
		Users:         e.users,
		VerifyRefresh: e.verifySubject(func() jwt.Claims { return &jwt.RefreshClaims{} }),
		IssuePair:     issuePair,
		IsRateLimited: isRateLimited,
		Now:           now,
		Warn:          e.warn,
	}
	if e.rateLimiter != nil && e.config.Security.EnableRefreshThrottle {
		e.flows.Refresh.RateLimiter = e.rateLimiter
	}

	e.flows.ChangePassword = flows.ChangePasswordDeps{
		Users:          e.users,
		Tokens:         e.tokens,
		VerifyPassword: e.hasher.Verify,
		CheckPolicy:    checkPolicy,
		HashPassword:   hashPassword,
	}

	e.flows.Validate = flows.ValidateDeps{
		VerifyAccess: e.verifyAccess,
		IsExpired:    jwt.IsExpired,
		Users:        e.users,
	}

	e.flows.Logout = flows.LogoutDeps{Tokens: e.tokens}
}

// enforceRequestLimit applies a request throttle. Redis failures are logged and
// the request is allowed.
func (e *Engine) enforceRequestLimit(ctx context.Context, l *limiters.RequestLimiter, identifier string) error {
	err := l.Enforce(ctx, identifier, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRateLimited):
		return withCause(ErrRateLimited, err)
	default:
		e.warn("request limiter unavailable", "error", err)
		return nil
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
