// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Counters become Int64ObservableCounters under their Prometheus names. Each
// latency histogram becomes a "_bucket" gauge with one point per upper bound
// (attribute "le") plus a "_count" gauge. All instruments are observed from
// one callback per collection. Callers own the MeterProvider.
package otel
