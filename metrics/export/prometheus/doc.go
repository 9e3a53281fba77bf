// Package prometheus exposes goGate engine counters as a
// [github.com/prometheus/client_golang/prometheus.Collector].
//
// Counter names are prefixed gogate_ and end in _total; the single histogram
// is gogate_request_latency_seconds. Register the [Collector] with any
// registry, or mount [Handler] which uses a private one.
package prometheus
