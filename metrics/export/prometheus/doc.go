// Package prometheus renders goSession counters in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads a [goSession.Client] and exposes an
// [http.Handler] for a /metrics route. Counter names are gosession_*_total;
// the only histogram is gosession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry (callers mount the Handler).
//   - Mutate client state.
package prometheus
