// Package lmsauth is the authentication and token-lifecycle engine of the
// learning platform: password login, registration, access/refresh token
// issuance and single-use rotation, revocation, password reset, email
// verification and OAuth2 social login with account linking.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// lmsauth is the public surface. It exposes [Engine], [FederationEngine],
// [Builder], [Config], the typed [AuthError] taxonomy and the store and
// collaborator interfaces ([UserStore], [TokenStore], [FederationStore],
// [Notifier], [ProviderVerifier]). Flow orchestration, rate limiting and audit
// dispatch live under internal/ and are never exported.
//
// Storage is pluggable: store/memstore for tests and single-process use,
// store/pgstore for PostgreSQL and store/redisstore for a Redis token store.
// Single-use of refresh, reset and verification tokens relies on the token
// store's compare-and-revoke.
//
// # What this package must NOT do
//
//   - Reveal whether an email is registered, through login or reset responses.
//   - Render error causes or token values to clients or logs.
//   - Import any sub-package that re-imports lmsauth (no import cycles).
package lmsauth
