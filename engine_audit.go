package lmsauth

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/lmsauth/internal/audit"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshFailure           = "refresh_failure"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogout                   = "logout"
	auditEventLogoutAll                = "logout_all"
	auditEventPasswordChange           = "password_change"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventSocialLogin              = "social_login"
	auditEventSocialAccountLinked      = "social_account_linked"
)

// emitAudit queues an event when auditing is enabled. err is reduced to its
// stable kind; messages and causes never reach the sink.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, err error, metadata map[string]string) {
	e.emitProviderAudit(ctx, eventType, success, userID, "", err, metadata)
}

func (e *Engine) emitProviderAudit(ctx context.Context, eventType string, success bool, userID, provider string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	e.audit.Emit(ctx, internalaudit.Event{
		EventType: eventType,
		UserID:    userID,
		Provider:  provider,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	})
}

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return string(ae.Kind)
	}
	return string(KindInternal)
}
