package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/lmsauth/model"
)

type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureNotFound
	LogoutFailureWrongType
	LogoutFailureStore
)

type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
	Token   *model.Token
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Tokens TokenStore
}

// RunLogout revokes one refresh token by value. Logging out twice succeeds.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	tok, err := deps.Tokens.GetByValue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return LogoutResult{Failure: LogoutFailureNotFound, Err: err}
		}
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	if tok.Type != model.TokenRefresh {
		return LogoutResult{Failure: LogoutFailureWrongType, Token: tok, Err: errors.New("token is not a refresh token")}
	}
	if _, err := deps.Tokens.Revoke(ctx, tok.ID); err != nil && !errors.Is(err, model.ErrAlreadyRevoked) {
		return LogoutResult{Failure: LogoutFailureStore, Token: tok, Err: err}
	}
	return LogoutResult{Token: tok}
}

// RunLogoutAll revokes every refresh token of userID.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int64, error) {
	return deps.Tokens.RevokeAllForUser(ctx, userID, model.TokenRefresh)
}
