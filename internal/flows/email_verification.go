package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

type EmailVerificationUserStore interface {
	UserReader
	VerifyEmail(ctx context.Context, id string) (*model.User, error)
	UpdateStatus(ctx context.Context, id string, status model.UserStatus) (*model.User, error)
}

// EmailVerificationDeps captures issue and confirm dependencies.
type EmailVerificationDeps struct {
	Users  EmailVerificationUserStore
	Tokens TokenStore

	SignVerification   func(userID string) (string, time.Time, error)
	VerifyVerification VerifyFunc
	IsExpired          func(error) bool
	Notify             func(ctx context.Context, user *model.User, tokenValue string) error
	NewID              func() string
	Now                func() time.Time
	Warn               func(string, ...any)
}

type EmailVerificationIssueResult struct {
	Failure SingleUseFailureKind
	Err     error
	User    *model.User
	Token   *model.Token
}

// RunIssueEmailVerification stores a verification token for user and notifies.
// Notifier failures are logged and do not fail the flow.
func RunIssueEmailVerification(ctx context.Context, user *model.User, deps EmailVerificationDeps) EmailVerificationIssueResult {
	tok, kind, err := issueSingleUse(ctx, user, model.TokenEmailVerification, deps.SignVerification, deps.NewID, deps.Tokens, nowOr(deps.Now))
	if kind != SingleUseFailureNone {
		return EmailVerificationIssueResult{Failure: kind, Err: err, User: user}
	}
	if deps.Notify != nil {
		if err := deps.Notify(ctx, user, tok.Value); err != nil {
			warn(deps.Warn, "verification notification failed", "user_id", user.ID, "error", err)
		}
	}
	return EmailVerificationIssueResult{User: user, Token: tok}
}

// RunResendEmailVerification reissues a token for an unverified account. Unknown
// and already verified emails yield an empty successful result.
func RunResendEmailVerification(ctx context.Context, email string, deps EmailVerificationDeps) EmailVerificationIssueResult {
	user, err := deps.Users.GetByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return EmailVerificationIssueResult{}
		}
		return EmailVerificationIssueResult{Failure: SingleUseFailureStore, Err: err}
	}
	if user.EmailVerified {
		return EmailVerificationIssueResult{}
	}
	return RunIssueEmailVerification(ctx, user, deps)
}

type EmailVerificationConfirmResult struct {
	Failure SingleUseFailureKind
	Err     error
	UserID  string
	User    *model.User
}

// RunVerifyEmail consumes a verification token, marks the email verified and
// activates a pending account.
func RunVerifyEmail(ctx context.Context, tokenValue string, deps EmailVerificationDeps) EmailVerificationConfirmResult {
	now := nowOr(deps.Now)
	kind, tok, err := inspectSingleUse(ctx, tokenValue, model.TokenEmailVerification, deps.VerifyVerification, deps.IsExpired, deps.Tokens, now, deps.Warn)
	if kind != SingleUseFailureNone {
		res := EmailVerificationConfirmResult{Failure: kind, Err: err}
		if tok != nil {
			res.UserID = tok.UserID
		}
		return res
	}

	if kind, err := claimSingleUse(ctx, deps.Tokens, tok); kind != SingleUseFailureNone {
		return EmailVerificationConfirmResult{Failure: kind, Err: err, UserID: tok.UserID}
	}

	user, err := deps.Users.VerifyEmail(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return EmailVerificationConfirmResult{Failure: SingleUseFailureUserNotFound, Err: err, UserID: tok.UserID}
		}
		return EmailVerificationConfirmResult{Failure: SingleUseFailureUpdate, Err: err, UserID: tok.UserID}
	}

	if user.Status == model.StatusPendingVerification {
		user, err = deps.Users.UpdateStatus(ctx, user.ID, model.StatusActive)
		if err != nil {
			return EmailVerificationConfirmResult{Failure: SingleUseFailureUpdate, Err: err, UserID: tok.UserID}
		}
	}

	return EmailVerificationConfirmResult{UserID: tok.UserID, User: user}
}
