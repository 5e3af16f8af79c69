package lmsauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/lmsauth/internal/flows"
	"github.com/MrEthical07/lmsauth/model"
	"go.uber.org/zap"
)

// ResetPassword starts a password reset for email. It returns nil for unknown
// emails without writing anything, so callers cannot enumerate accounts. For a
// known email a RESET_PASSWORD token is stored and handed to the Notifier.
func (e *Engine) ResetPassword(ctx context.Context, email string) error {
	if err := e.enforceRequestLimit(ctx, e.resetLimiter, model.NormalizeEmail(email)); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", err, nil)
		return err
	}

	res := flows.RunRequestPasswordReset(ctx, email, e.flows.PasswordReset)
	if res.Failure != flows.SingleUseFailureNone {
		e.logger.Error("password reset request failed", zap.Error(res.Err))
		err := withCause(ErrInternal, res.Err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	if res.User != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, res.User.ID, nil, nil)
	}
	return nil
}

// ConfirmResetPassword consumes a reset token, sets the new password and
// revokes every refresh token of the user.
func (e *Engine) ConfirmResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	res := flows.RunConfirmPasswordReset(ctx, token, newPassword, confirmPassword, e.flows.PasswordReset)

	err := singleUseError(res.Failure, res.Err, res.Violations, resetLabels)
	if err == nil {
		e.metricInc(MetricPasswordResetConfirmSuccess)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, true, res.UserID, nil, map[string]string{
			"revoked": fmt.Sprint(res.RevokedSessions),
		})
		return nil
	}

	if err.Kind == KindInternal {
		e.logger.Error("password reset confirm failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
	}
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, res.UserID, err, nil)
	return err
}
