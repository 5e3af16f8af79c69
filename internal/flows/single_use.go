package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// SingleUseFailureKind classifies failures of flows that consume a stored,
// single-use token (password reset, email verification).
type SingleUseFailureKind int

const (
	SingleUseFailureNone SingleUseFailureKind = iota
	SingleUseFailurePasswordMismatch
	SingleUseFailureClaims
	SingleUseFailureExpired
	SingleUseFailureNotFound
	SingleUseFailureWrongRecord
	SingleUseFailureConsumed
	SingleUseFailureStore
	SingleUseFailurePolicy
	SingleUseFailureHash
	SingleUseFailureUserNotFound
	SingleUseFailureUpdate
	SingleUseFailureIssue
)

// inspectSingleUse verifies the signed claims and the stored record. Records
// found to be expired or inconsistent with their claims are revoked before
// returning.
func inspectSingleUse(
	ctx context.Context,
	value string,
	tokenType model.TokenType,
	verify VerifyFunc,
	isExpired func(error) bool,
	tokens TokenStore,
	now time.Time,
	warnFn func(string, ...any),
) (SingleUseFailureKind, *model.Token, error) {
	subject, err := verify(value)
	if err != nil {
		kind := SingleUseFailureClaims
		if isExpired != nil && isExpired(err) {
			kind = SingleUseFailureExpired
		}
		revokeByValueIfStored(ctx, tokens, value, warnFn)
		return kind, nil, err
	}

	tok, err := tokens.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SingleUseFailureNotFound, nil, err
		}
		return SingleUseFailureStore, nil, err
	}

	if tok.Type != tokenType || tok.UserID != subject {
		revokeRecord(ctx, tokens, tok, warnFn)
		return SingleUseFailureWrongRecord, tok, errors.New("stored token does not match claims")
	}
	if tok.Revoked {
		return SingleUseFailureConsumed, tok, model.ErrAlreadyRevoked
	}
	if tok.Expired(now) {
		revokeRecord(ctx, tokens, tok, warnFn)
		return SingleUseFailureExpired, tok, errors.New("stored token expired")
	}

	return SingleUseFailureNone, tok, nil
}

// claimSingleUse performs the compare-and-revoke that makes a token single-use.
func claimSingleUse(ctx context.Context, tokens TokenStore, tok *model.Token) (SingleUseFailureKind, error) {
	if _, err := tokens.Revoke(ctx, tok.ID); err != nil {
		switch {
		case errors.Is(err, model.ErrAlreadyRevoked):
			return SingleUseFailureConsumed, err
		case errors.Is(err, model.ErrNotFound):
			return SingleUseFailureNotFound, err
		default:
			return SingleUseFailureStore, err
		}
	}
	return SingleUseFailureNone, nil
}

func revokeRecord(ctx context.Context, tokens TokenStore, tok *model.Token, warnFn func(string, ...any)) {
	if tok == nil || tok.Revoked {
		return
	}
	if _, err := tokens.Revoke(ctx, tok.ID); err != nil &&
		!errors.Is(err, model.ErrAlreadyRevoked) &&
		!errors.Is(err, model.ErrNotFound) {
		warn(warnFn, "token revoke failed", "token_id", tok.ID, "error", err)
	}
}

func revokeByValueIfStored(ctx context.Context, tokens TokenStore, value string, warnFn func(string, ...any)) {
	tok, err := tokens.GetByValue(ctx, value)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			warn(warnFn, "token lookup failed", "error", err)
		}
		return
	}
	revokeRecord(ctx, tokens, tok, warnFn)
}

// issueSingleUse signs a value, stores its record and returns it.
func issueSingleUse(
	ctx context.Context,
	user *model.User,
	tokenType model.TokenType,
	sign func(userID string) (string, time.Time, error),
	newID func() string,
	tokens TokenStore,
	now time.Time,
) (*model.Token, SingleUseFailureKind, error) {
	value, expiresAt, err := sign(user.ID)
	if err != nil {
		return nil, SingleUseFailureIssue, err
	}
	record := &model.Token{
		ID:        newID(),
		UserID:    user.ID,
		Type:      tokenType,
		Value:     value,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	stored, err := tokens.Create(ctx, record)
	if err != nil {
		return nil, SingleUseFailureStore, err
	}
	return stored, SingleUseFailureNone, nil
}
