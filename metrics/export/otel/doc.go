// Package otel binds engine metrics to an OpenTelemetry meter.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// published as one gauge per cumulative bucket plus _count and _sum gauges.
// The caller owns the MeterProvider.
package otel
