// Package prometheus renders engine metrics in the Prometheus text
// exposition format.
//
// Counters are named godeliver_*_total and the checkout latency histogram is
// godeliver_checkout_latency_seconds. Nothing is registered globally; mount
// [PrometheusExporter.Handler] where it is needed.
package prometheus
