// Package limiters provides per-operation request throttles on top of Redis
// fixed-window counters.
//
// # Limiters
//
//   - NewAccountCreationLimiter: per-IP throttle for registrations.
//   - NewPasswordResetLimiter: per-email and per-IP throttle for reset requests.
//   - NewEmailVerificationLimiter: per-email and per-IP throttle for resends.
//
// All limiters are nil-safe: Enforce on a nil receiver returns nil, and the
// constructors return nil when no Redis client or budget is configured.
//
// # What this package must NOT do
//
//   - Import lmsauth or any sibling internal package.
//   - Make policy decisions beyond counting. Callers decide consequences.
package limiters
