package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureLookup
	LoginFailureInvalidCredentials
	LoginFailureNotActive
	LoginFailureIssue
)

type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	User    *model.User
	Pair    *model.TokenPair
}

type LoginUserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (*model.User, error)
}

// LoginDeps captures login dependencies. The rate-limit hooks are optional.
type LoginDeps struct {
	Users LoginUserStore

	VerifyPassword func(plain, encoded string) (bool, error)
	NeedsUpgrade   func(encoded string) bool
	HashPassword   func(string) (string, error)
	UpgradeOnLogin bool
	// DummyHash is verified against when the email is unknown so both failure
	// paths cost one hash verification.
	DummyHash string

	CheckLoginRate      func(ctx context.Context, email, ip string) error
	IncrementLoginRate  func(ctx context.Context, email, ip string) error
	ResetLoginRate      func(ctx context.Context, email, ip string) error
	IsRateLimited       func(error) bool
	ClientIPFromContext func(context.Context) string

	IssuePair IssuePairFunc
	Now       func() time.Time
	Warn      func(string, ...any)
}

// RunLogin authenticates email/password and issues a pair. Existing refresh
// tokens of the user stay valid.
func RunLogin(ctx context.Context, email, password string, device model.DeviceInfo, deps LoginDeps) LoginResult {
	email = model.NormalizeEmail(email)
	ip := ""
	if deps.ClientIPFromContext != nil {
		ip = deps.ClientIPFromContext(ctx)
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			if deps.IsRateLimited == nil || deps.IsRateLimited(err) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			warn(deps.Warn, "login limiter unavailable", "error", err)
		}
	}

	user, err := deps.Users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	if user == nil {
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		recordLoginFailure(ctx, email, ip, deps)
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: model.ErrNotFound}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		warn(deps.Warn, "password verification error", "user_id", user.ID, "error", err)
	}
	if !ok {
		recordLoginFailure(ctx, email, ip, deps)
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: errors.New("password mismatch")}
	}

	if !user.IsActive() {
		return LoginResult{Failure: LoginFailureNotActive, User: user}
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			warn(deps.Warn, "login limiter reset failed", "error", err)
		}
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.NeedsUpgrade(user.PasswordHash) {
		if upgraded, err := deps.HashPassword(password); err == nil {
			if _, err := deps.Users.UpdatePassword(ctx, user.ID, upgraded); err != nil {
				warn(deps.Warn, "password hash upgrade failed", "user_id", user.ID, "error", err)
			}
		}
	}

	now := nowOr(deps.Now)
	if updated, err := deps.Users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		warn(deps.Warn, "last_login update failed", "user_id", user.ID, "error", err)
		user.LastLogin = &now
	} else {
		user = updated
	}

	pair, err := deps.IssuePair(ctx, user, device)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user}
	}
	return LoginResult{User: user, Pair: pair}
}

func recordLoginFailure(ctx context.Context, email, ip string, deps LoginDeps) {
	if deps.IncrementLoginRate == nil {
		return
	}
	if err := deps.IncrementLoginRate(ctx, email, ip); err != nil && (deps.IsRateLimited == nil || !deps.IsRateLimited(err)) {
		warn(deps.Warn, "login limiter increment failed", "error", err)
	}
}
