// Package prometheus provides Prometheus collectors for pinauth metrics.
//
// [NewPrometheusExporter] accepts a [pinauth.Engine] and exposes an [http.Handler]
// that renders all pinauth counters and histograms in Prometheus text exposition format.
// Counter names are prefixed pinauth_*_total; the single histogram is
// pinauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
