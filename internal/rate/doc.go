// Package rate provides Redis-backed fixed-window throttling for login and
// refresh.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - lms:rl:login:   failed logins per email (sha256, truncated)
//   - lms:rl:ip:      failed logins per client IP
//   - lms:rl:refresh: refresh exchanges per user
package rate
