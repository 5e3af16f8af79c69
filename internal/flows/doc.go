// Package flows contains pure-function orchestrators for Engine operations.
//
// Each flow function (RunLogin, RunRefresh, RunConfirmPasswordReset, ...) accepts
// a typed dependency struct and returns a result carrying a failure kind. The
// Engine maps failure kinds to typed errors, metrics and audit events.
//
// Flows coordinate stores, the token signer and the rate limiter. They do NOT
// own any of these resources, hold state between calls, or import the root
// package.
package flows
