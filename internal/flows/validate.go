package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/model"
)

// ValidateFailureKind classifies access-token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureExpired
	ValidateFailureInvalid
	ValidateFailureLookup
	ValidateFailureUserNotFound
	ValidateFailureNotActive
)

type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	User    *model.User
}

type ValidateDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, error)
	IsExpired    func(error) bool
	Users        UserReader
}

// RunValidateAccess checks an access token without touching storage.
func RunValidateAccess(tokenStr string, deps ValidateDeps) ValidateResult {
	if tokenStr == "" {
		return ValidateResult{Failure: ValidateFailureInvalid, Err: errors.New("empty token")}
	}
	claims, err := deps.VerifyAccess(tokenStr)
	if err != nil {
		if deps.IsExpired != nil && deps.IsExpired(err) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}
	return ValidateResult{Claims: claims}
}

// RunCurrentUser validates the access token and loads its active owner.
func RunCurrentUser(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	res := RunValidateAccess(tokenStr, deps)
	if res.Failure != ValidateFailureNone {
		return res
	}

	user, err := deps.Users.GetByID(ctx, res.Claims.Subject)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureUserNotFound, Err: err, Claims: res.Claims}
		}
		return ValidateResult{Failure: ValidateFailureLookup, Err: err, Claims: res.Claims}
	}
	if !user.IsActive() {
		return ValidateResult{Failure: ValidateFailureNotActive, Claims: res.Claims, User: user}
	}
	return ValidateResult{Claims: res.Claims, User: user}
}
