// Package metrics defines the Prometheus collectors exported by the fetcher:
// request outcomes, latency, response sizes and connection pool occupancy.
package metrics
