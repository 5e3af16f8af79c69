// Package otel publishes engine metrics as OpenTelemetry observable
// instruments. Callers own the MeterProvider and pass a Meter; one callback
// reads the engine snapshot per collection.
package otel
