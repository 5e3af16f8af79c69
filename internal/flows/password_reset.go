package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

type PasswordResetUserStore interface {
	UserReader
	UpdatePassword(ctx context.Context, id, passwordHash string) (*model.User, error)
}

// PasswordResetDeps captures request and confirm dependencies.
type PasswordResetDeps struct {
	Users  PasswordResetUserStore
	Tokens TokenStore

	SignReset    func(userID string) (string, time.Time, error)
	VerifyReset  VerifyFunc
	IsExpired    func(error) bool
	CheckPolicy  func(string) []string
	HashPassword func(string) (string, error)
	Notify       func(ctx context.Context, user *model.User, tokenValue string) error
	NewID        func() string
	Now          func() time.Time
	Warn         func(string, ...any)
}

// PasswordResetRequestResult reports what a reset request did. User is nil when
// the email is unknown; callers must not reveal that difference.
type PasswordResetRequestResult struct {
	Failure SingleUseFailureKind
	Err     error
	User    *model.User
	Token   *model.Token
}

// RunRequestPasswordReset issues a reset token for a known email and hands it to
// the notifier. Unknown emails produce an empty, successful result with no writes.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) PasswordResetRequestResult {
	user, err := deps.Users.GetByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return PasswordResetRequestResult{}
		}
		return PasswordResetRequestResult{Failure: SingleUseFailureStore, Err: err}
	}

	tok, kind, err := issueSingleUse(ctx, user, model.TokenResetPassword, deps.SignReset, deps.NewID, deps.Tokens, nowOr(deps.Now))
	if kind != SingleUseFailureNone {
		return PasswordResetRequestResult{Failure: kind, Err: err, User: user}
	}

	if deps.Notify != nil {
		if err := deps.Notify(ctx, user, tok.Value); err != nil {
			warn(deps.Warn, "reset notification failed", "user_id", user.ID, "error", err)
		}
	}

	return PasswordResetRequestResult{User: user, Token: tok}
}

// PasswordResetConfirmResult carries the outcome of a reset confirmation.
type PasswordResetConfirmResult struct {
	Failure         SingleUseFailureKind
	Err             error
	UserID          string
	Violations      []string
	RevokedSessions int64
}

// RunConfirmPasswordReset consumes a reset token, stores the new hash and
// revokes every refresh token of the user. The token is consumed only after the
// new password passes policy.
func RunConfirmPasswordReset(ctx context.Context, tokenValue, newPassword, confirmPassword string, deps PasswordResetDeps) PasswordResetConfirmResult {
	if newPassword != confirmPassword {
		return PasswordResetConfirmResult{Failure: SingleUseFailurePasswordMismatch, Violations: []string{"passwords do not match"}}
	}

	now := nowOr(deps.Now)
	kind, tok, err := inspectSingleUse(ctx, tokenValue, model.TokenResetPassword, deps.VerifyReset, deps.IsExpired, deps.Tokens, now, deps.Warn)
	if kind != SingleUseFailureNone {
		res := PasswordResetConfirmResult{Failure: kind, Err: err}
		if tok != nil {
			res.UserID = tok.UserID
		}
		return res
	}

	if violations := deps.CheckPolicy(newPassword); len(violations) > 0 {
		return PasswordResetConfirmResult{Failure: SingleUseFailurePolicy, UserID: tok.UserID, Violations: violations}
	}
	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return PasswordResetConfirmResult{Failure: SingleUseFailureHash, Err: err, UserID: tok.UserID}
	}

	if kind, err := claimSingleUse(ctx, deps.Tokens, tok); kind != SingleUseFailureNone {
		return PasswordResetConfirmResult{Failure: kind, Err: err, UserID: tok.UserID}
	}

	if _, err := deps.Users.UpdatePassword(ctx, tok.UserID, hash); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return PasswordResetConfirmResult{Failure: SingleUseFailureUserNotFound, Err: err, UserID: tok.UserID}
		}
		return PasswordResetConfirmResult{Failure: SingleUseFailureUpdate, Err: err, UserID: tok.UserID}
	}

	revoked, err := deps.Tokens.RevokeAllForUser(ctx, tok.UserID, model.TokenRefresh)
	if err != nil {
		return PasswordResetConfirmResult{Failure: SingleUseFailureStore, Err: err, UserID: tok.UserID}
	}

	return PasswordResetConfirmResult{UserID: tok.UserID, RevokedSessions: revoked}
}
