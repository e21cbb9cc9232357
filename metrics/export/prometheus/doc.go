// Package prometheus renders goSession engine metrics in the Prometheus text
// exposition format.
//
// Counters are named gosession_*_total. The refresh latency histogram is
// gosession_refresh_latency_seconds. sessiond mounts [PrometheusExporter.Handler]
// at /metrics.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
