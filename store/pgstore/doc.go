// Package pgstore implements the user, token and federation stores on
// PostgreSQL through sqlx and lib/pq.
//
// Roles are stored as a text array, device info, metadata and provider profile
// data as JSONB. Token revocation is a single conditional UPDATE, which gives
// the compare-and-revoke the engine relies on for single-use tokens.
//
// [EnsureSchema] creates the tables idempotently; production deployments are
// expected to run the same DDL through their migration tool.
package pgstore
