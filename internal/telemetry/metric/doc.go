// Package metric provides Prometheus metrics for SigMesh.
//
// It exposes metrics in Prometheus format for monitoring sync throughput,
// fan-out volume, registry occupancy, and pull pagination behavior.
package metric
