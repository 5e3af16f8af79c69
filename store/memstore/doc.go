// Package memstore provides mutex-guarded in-memory implementations of the
// user, token and federation stores. Records are deep-copied on the way in and
// out so callers never share state with the store.
package memstore
