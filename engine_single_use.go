package lmsauth

import (
	"net/http"

	"github.com/MrEthical07/lmsauth/internal/flows"
)

// singleUseLabels names the token in client-facing messages, e.g. "reset" or
// "verification".
type singleUseLabels struct {
	invalid string
	expired string
}

var (
	resetLabels = singleUseLabels{
		invalid: "Invalid reset token",
		expired: "Reset token has expired",
	}
	verificationLabels = singleUseLabels{
		invalid: "Invalid verification token",
		expired: "Verification token has expired",
	}
)

// singleUseError maps a single-use flow failure onto the public taxonomy. A
// consumed token reports TokenExpired, the same as an expired one.
func singleUseError(kind flows.SingleUseFailureKind, cause error, violations []string, labels singleUseLabels) *AuthError {
	switch kind {
	case flows.SingleUseFailureNone:
		return nil
	case flows.SingleUseFailurePasswordMismatch, flows.SingleUseFailurePolicy:
		return passwordPolicyError(violations)
	case flows.SingleUseFailureClaims, flows.SingleUseFailureNotFound, flows.SingleUseFailureWrongRecord:
		return &AuthError{Kind: KindInvalidToken, Message: labels.invalid, Status: http.StatusUnauthorized, cause: cause}
	case flows.SingleUseFailureExpired, flows.SingleUseFailureConsumed:
		return &AuthError{Kind: KindTokenExpired, Message: labels.expired, Status: http.StatusUnauthorized, cause: cause}
	case flows.SingleUseFailureUserNotFound:
		return withCause(ErrUserNotFound, cause)
	default:
		return withCause(ErrInternal, cause)
	}
}
