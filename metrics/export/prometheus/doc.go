// Package prometheus exposes engine metrics as a prometheus.Collector.
//
// Counters are published as contestauth_*_total and token validation latency
// as the histogram contestauth_validate_latency_seconds. [Exporter.Handler]
// serves a private registry; nothing is registered globally.
package prometheus
