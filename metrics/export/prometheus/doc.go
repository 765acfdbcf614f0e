// Package prometheus serves controller counters and the profile-load latency
// histogram in the Prometheus text exposition format. Callers mount
// Exporter.Handler wherever they expose metrics; nothing is registered
// globally.
package prometheus
