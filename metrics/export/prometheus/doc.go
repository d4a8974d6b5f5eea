// Package prometheus exposes authgate metrics through prometheus/client_golang.
//
// [Collector] implements prometheus.Collector over an engine snapshot. Counters are
// named authgate_*_total; latency histograms are authgate_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers choose the Registerer.
//   - Mutate engine state.
package prometheus
