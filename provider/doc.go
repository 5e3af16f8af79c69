// Package provider contains [lmsauth.ProviderVerifier] implementations for the
// supported OAuth2 identity providers.
//
// Verifiers make at most one round of HTTP calls per Verify and never retry;
// the caller bounds them with a context deadline. Every failure, including a
// token issued for another application, is returned as an error.
package provider
