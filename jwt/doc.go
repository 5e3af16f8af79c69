// Package jwt signs and verifies the four token purposes used by the engine:
// access, refresh, reset_password and email_verification. Each purpose has its
// own claims struct, and Verify rejects a token whose type claim belongs to a
// different purpose.
package jwt
