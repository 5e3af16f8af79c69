// Package model holds the domain records shared by the engine, its flows, and the
// store implementations: users, issued tokens, and OAuth2 provider connections.
//
// # Architecture boundaries
//
// model is a leaf package. It defines values and the sentinel errors every store
// must return; it performs no I/O and imports no other lmsauth package.
package model
