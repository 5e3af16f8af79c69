// Package notify provides [lmsauth.Notifier] implementations that hand reset
// and verification tokens to the delivery pipeline.
//
// The engine treats notifier failures as non-fatal, so implementations only
// report errors and never retry.
package notify
