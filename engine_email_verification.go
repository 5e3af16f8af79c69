package lmsauth

import (
	"context"

	"github.com/MrEthical07/lmsauth/internal/flows"
	"github.com/MrEthical07/lmsauth/model"
	"go.uber.org/zap"
)

// VerifyEmail consumes an email verification token, marks the address verified
// and activates a PENDING_VERIFICATION account.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	res := flows.RunVerifyEmail(ctx, token, e.flows.EmailVerification)

	err := singleUseError(res.Failure, res.Err, nil, verificationLabels)
	if err == nil {
		e.metricInc(MetricEmailVerificationSuccess)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, res.UserID, nil, nil)
		return nil
	}

	if err.Kind == KindInternal {
		e.logger.Error("email verification failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
	}
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, res.UserID, err, nil)
	return err
}

// RequestEmailVerification sends a fresh verification token to an unverified
// account. Unknown and already verified emails return nil with no writes.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if err := e.enforceRequestLimit(ctx, e.verificationLimiter, model.NormalizeEmail(email)); err != nil {
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, "", err, nil)
		return err
	}

	res := flows.RunResendEmailVerification(ctx, email, e.flows.EmailVerification)
	if res.Failure != flows.SingleUseFailureNone {
		e.logger.Error("email verification request failed", zap.Error(res.Err))
		err := withCause(ErrInternal, res.Err)
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, "", err, nil)
		return err
	}
	if res.Token != nil {
		e.metricInc(MetricEmailVerificationRequest)
		e.emitAudit(ctx, auditEventEmailVerificationRequest, true, res.User.ID, nil, nil)
	}
	return nil
}
