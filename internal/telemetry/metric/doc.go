// Package metric exposes muxd's Prometheus metrics.
//
// Registry owns a private prometheus.Registry with the Go and process
// collectors plus the server's own counters, gauges and histograms.
// Server publishes it over HTTP at /metrics when metrics.addr is set.
package metric
