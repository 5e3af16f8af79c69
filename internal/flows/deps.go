package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// TokenStore is the subset of the token store used by flows.
type TokenStore interface {
	Create(ctx context.Context, token *model.Token) (*model.Token, error)
	GetByValue(ctx context.Context, value string) (*model.Token, error)
	Revoke(ctx context.Context, id string) (*model.Token, error)
	RevokeAllForUser(ctx context.Context, userID string, tokenType model.TokenType) (int64, error)
}

// UserReader is the read side of the user store.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// IssuePairFunc signs an access/refresh pair and persists the refresh record.
type IssuePairFunc func(ctx context.Context, user *model.User, device model.DeviceInfo) (*model.TokenPair, error)

// VerifyFunc checks a signed value for one purpose and returns its subject.
type VerifyFunc func(value string) (subject string, err error)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login             LoginDeps
	Register          RegisterDeps
	ChangePassword    ChangePasswordDeps
	Validate          ValidateDeps
	Logout            LogoutDeps
	Refresh           RefreshDeps
	PasswordReset     PasswordResetDeps
	EmailVerification EmailVerificationDeps
}

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now()
}

func warn(fn func(string, ...any), msg string, kv ...any) {
	if fn != nil {
		fn(msg, kv...)
	}
}
