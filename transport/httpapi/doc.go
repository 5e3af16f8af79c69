// Package httpapi exposes the engine over HTTP with echo.
//
// Routes live under /api/auth and /api/oauth. Failures are rendered as
// {"error":{"code","message","details"}} where code is the AuthError kind.
package httpapi
