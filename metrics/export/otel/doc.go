// Package otel publishes authgate metrics as OpenTelemetry observable instruments.
//
// Counters map to Int64ObservableCounter. Each latency histogram maps to one
// Int64ObservableGauge of cumulative bucket counts labelled with "le", plus a
// "_count" gauge. A single callback reads the engine snapshot per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
