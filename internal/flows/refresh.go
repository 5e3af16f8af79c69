package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureLookup
	RefreshFailureNotFound
	RefreshFailureWrongType
	RefreshFailureExpired
	RefreshFailureRevoked
	RefreshFailureClaims
	RefreshFailureRateLimited
	RefreshFailureUserLookup
	RefreshFailureUserNotFound
	RefreshFailureNotActive
	RefreshFailureConsumed
	RefreshFailureContended
	RefreshFailureRotate
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Token   *model.Token
	User    *model.User
	Pair    *model.TokenPair
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, userID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Tokens        TokenStore
	Users         UserReader
	RateLimiter   RefreshRateLimiter
	VerifyRefresh VerifyFunc
	IssuePair     IssuePairFunc
	IsRateLimited func(error) bool
	Now           func() time.Time
	Warn          func(string, ...any)
}

// RunRefresh exchanges a stored refresh token for a new pair. The old record is
// revoked with a compare-and-revoke before the new pair is issued, so of two
// concurrent exchanges of the same value exactly one reaches issuance.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	tok, err := deps.Tokens.GetByValue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureLookup, Err: err}
	}
	if tok.Type != model.TokenRefresh {
		return RefreshResult{Failure: RefreshFailureWrongType, Token: tok, Err: errors.New("token is not a refresh token")}
	}

	now := nowOr(deps.Now)
	if tok.Revoked {
		return RefreshResult{Failure: RefreshFailureRevoked, Token: tok, Err: model.ErrAlreadyRevoked}
	}
	if tok.Expired(now) {
		revokeRecord(ctx, deps.Tokens, tok, deps.Warn)
		return RefreshResult{Failure: RefreshFailureExpired, Token: tok, Err: errors.New("refresh token expired")}
	}

	subject, err := deps.VerifyRefresh(refreshToken)
	if err == nil && subject != tok.UserID {
		err = errors.New("refresh subject does not match stored owner")
	}
	if err != nil {
		revokeRecord(ctx, deps.Tokens, tok, deps.Warn)
		return RefreshResult{Failure: RefreshFailureClaims, Token: tok, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, tok.UserID); err != nil {
			if deps.IsRateLimited == nil || deps.IsRateLimited(err) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Token: tok, Err: err}
			}
			warn(deps.Warn, "refresh limiter unavailable", "error", err)
		}
	}

	user, err := deps.Users.GetByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			revokeRecord(ctx, deps.Tokens, tok, deps.Warn)
			return RefreshResult{Failure: RefreshFailureUserNotFound, Token: tok, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureUserLookup, Token: tok, Err: err}
	}
	if !user.IsActive() {
		revokeRecord(ctx, deps.Tokens, tok, deps.Warn)
		return RefreshResult{Failure: RefreshFailureNotActive, Token: tok, User: user}
	}

	if _, err := deps.Tokens.Revoke(ctx, tok.ID); err != nil {
		if errors.Is(err, model.ErrAlreadyRevoked) || errors.Is(err, model.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureConsumed, Token: tok, User: user, Err: err}
		}
		if errors.Is(err, model.ErrContention) {
			return RefreshResult{Failure: RefreshFailureContended, Token: tok, User: user, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureRotate, Token: tok, User: user, Err: err}
	}

	pair, err := deps.IssuePair(ctx, user, tok.DeviceInfo.Clone())
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Token: tok, User: user, Err: err}
	}

	return RefreshResult{Token: tok, User: user, Pair: pair}
}
