// Package middleware provides net/http guards for services that embed an
// lmsauth Engine without the bundled echo transport.
//
// # Guards
//
//   - [RequireJWTOnly] verifies the access token signature and claims only.
//   - [RequireStrict] additionally loads the user and rejects missing or
//     inactive accounts.
//   - [RequireRole] wraps either guard and admits only the listed roles.
//
// Rejected requests receive the {error:{code,message}} body used by the HTTP
// API with the status carried by the engine error.
package middleware
