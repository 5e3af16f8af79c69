package lmsauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/lmsauth/model"
	"go.uber.org/zap"
)

const auditEventAccountStatusChange = "account_status_change"

// ActivateAccount sets userID to ACTIVE.
func (e *Engine) ActivateAccount(ctx context.Context, userID string) error {
	return e.SetUserStatus(ctx, userID, StatusActive)
}

// DeactivateAccount sets userID to INACTIVE and revokes its refresh tokens.
func (e *Engine) DeactivateAccount(ctx context.Context, userID string) error {
	return e.SetUserStatus(ctx, userID, StatusInactive)
}

// SuspendAccount sets userID to SUSPENDED and revokes its refresh tokens.
func (e *Engine) SuspendAccount(ctx context.Context, userID string) error {
	return e.SetUserStatus(ctx, userID, StatusSuspended)
}

// DeleteAccount marks userID DELETED. The record itself is kept.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	return e.SetUserStatus(ctx, userID, StatusDeleted)
}

// SetUserStatus moves userID to status. Any status other than ACTIVE or
// PENDING_VERIFICATION also revokes every refresh token of the user, so
// existing sessions end at their next refresh. Setting the current status is a
// no-op.
func (e *Engine) SetUserStatus(ctx context.Context, userID string, status UserStatus) error {
	err := e.updateStatusAndInvalidate(ctx, userID, status)
	e.emitAudit(ctx, auditEventAccountStatusChange, err == nil, userID, err, map[string]string{
		"status": string(status),
	})
	return err
}

func (e *Engine) updateStatusAndInvalidate(ctx context.Context, userID string, status UserStatus) error {
	if !status.Valid() {
		return invalidRequestError("status")
	}
	if userID == "" {
		return ErrUserNotFound
	}

	current, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return withCause(ErrUserNotFound, err)
		}
		e.logger.Error("status lookup failed", zap.String("user_id", userID), zap.Error(err))
		return withCause(ErrInternal, err)
	}
	if current.Status == status {
		return nil
	}

	if _, err := e.users.UpdateStatus(ctx, userID, status); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return withCause(ErrUserNotFound, err)
		}
		e.logger.Error("status update failed", zap.String("user_id", userID), zap.Error(err))
		return withCause(ErrInternal, err)
	}

	if keepsSessions(status) {
		return nil
	}
	if _, err := e.tokens.RevokeAllForUser(ctx, userID, model.TokenRefresh); err != nil {
		e.logger.Error("session invalidation failed", zap.String("user_id", userID), zap.Error(err))
		return withCause(ErrInternal, fmt.Errorf("revoke refresh tokens: %w", err))
	}
	return nil
}

func keepsSessions(status UserStatus) bool {
	return status == StatusActive || status == StatusPendingVerification
}
