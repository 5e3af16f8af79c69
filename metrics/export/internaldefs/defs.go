package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

type CounterDef struct {
	ID   lmsauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   lmsauth.MetricID
	Name string
	Help string
}

const AuditDroppedName = "lmsauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: lmsauth.MetricLoginSuccess, Name: "lmsauth_login_success_total", Help: "Successful logins."},
	{ID: lmsauth.MetricLoginFailure, Name: "lmsauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: lmsauth.MetricLoginRateLimited, Name: "lmsauth_login_rate_limited_total", Help: "Logins rejected by throttling."},
	{ID: lmsauth.MetricLoginNotActive, Name: "lmsauth_login_not_active_total", Help: "Logins rejected because the account is not active."},
	{ID: lmsauth.MetricRegisterSuccess, Name: "lmsauth_register_success_total", Help: "Accounts registered."},
	{ID: lmsauth.MetricRegisterDuplicate, Name: "lmsauth_register_duplicate_total", Help: "Registrations rejected for a taken email or username."},
	{ID: lmsauth.MetricRegisterFailure, Name: "lmsauth_register_failure_total", Help: "Registrations rejected for other reasons."},
	{ID: lmsauth.MetricRefreshSuccess, Name: "lmsauth_refresh_success_total", Help: "Refresh token exchanges."},
	{ID: lmsauth.MetricRefreshFailure, Name: "lmsauth_refresh_failure_total", Help: "Rejected refresh token exchanges."},
	{ID: lmsauth.MetricRefreshReuseDetected, Name: "lmsauth_refresh_reuse_detected_total", Help: "Presentations of an already used refresh token."},
	{ID: lmsauth.MetricRefreshRateLimited, Name: "lmsauth_refresh_rate_limited_total", Help: "Refresh exchanges rejected by throttling."},
	{ID: lmsauth.MetricLogout, Name: "lmsauth_logout_total", Help: "Single-session logouts."},
	{ID: lmsauth.MetricLogoutAll, Name: "lmsauth_logout_all_total", Help: "Logouts of every session of a user."},
	{ID: lmsauth.MetricPasswordChangeSuccess, Name: "lmsauth_password_change_success_total", Help: "Password changes."},
	{ID: lmsauth.MetricPasswordChangeFailure, Name: "lmsauth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: lmsauth.MetricPasswordResetRequest, Name: "lmsauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: lmsauth.MetricPasswordResetConfirmSuccess, Name: "lmsauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: lmsauth.MetricPasswordResetConfirmFailure, Name: "lmsauth_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: lmsauth.MetricEmailVerificationRequest, Name: "lmsauth_email_verification_request_total", Help: "Email verification requests."},
	{ID: lmsauth.MetricEmailVerificationSuccess, Name: "lmsauth_email_verification_success_total", Help: "Verified email addresses."},
	{ID: lmsauth.MetricEmailVerificationFailure, Name: "lmsauth_email_verification_failure_total", Help: "Rejected email verifications."},
	{ID: lmsauth.MetricSocialLoginSuccess, Name: "lmsauth_social_login_success_total", Help: "Successful social logins."},
	{ID: lmsauth.MetricSocialLoginFailure, Name: "lmsauth_social_login_failure_total", Help: "Rejected social logins."},
	{ID: lmsauth.MetricSocialAccountCreated, Name: "lmsauth_social_account_created_total", Help: "Accounts created by social login."},
	{ID: lmsauth.MetricSocialAccountLinked, Name: "lmsauth_social_account_linked_total", Help: "Provider identities linked to existing accounts."},
	{ID: lmsauth.MetricNotifyFailure, Name: "lmsauth_notify_failure_total", Help: "Notifications the notifier failed to accept."},
	{ID: lmsauth.MetricExpiredTokensCleaned, Name: "lmsauth_expired_tokens_cleaned_total", Help: "Expired token records removed."},
}

var HistogramDefs = []HistogramDef{
	{ID: lmsauth.MetricLoginLatency, Name: "lmsauth_login_latency_seconds", Help: "Login latency."},
	{ID: lmsauth.MetricRefreshLatency, Name: "lmsauth_refresh_latency_seconds", Help: "Refresh latency."},
}

// BucketLabels are the Prometheus le values of each histogram bucket, the
// last one being +Inf.
var BucketLabels = bucketLabels()

// BucketSuffixes are BucketLabels made safe for instrument names.
var BucketSuffixes = bucketSuffixes(BucketLabels)

func bucketLabels() []string {
	bounds := lmsauth.HistogramBounds()
	out := make([]string, 0, len(bounds)+1)
	for _, b := range bounds {
		out = append(out, strconv.FormatFloat(b.Seconds(), 'f', -1, 64))
	}
	return append(out, "+Inf")
}

func bucketSuffixes(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		if l == "+Inf" {
			out[i] = "inf"
			continue
		}
		out[i] = strings.ReplaceAll(l, ".", "_")
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into cumulative counts with one
// entry per bucket label. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, len(BucketLabels))
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
