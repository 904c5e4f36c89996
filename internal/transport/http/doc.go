// Package http implements the diagnostics listener: health, version,
// Prometheus metrics, and a read-only view of recent pipeline runs.
// It carries no data-plane traffic; the datasets are files on disk.
package http
