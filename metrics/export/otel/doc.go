// Package otel exposes controller metrics as OpenTelemetry asynchronous
// instruments: one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. The caller owns the
// MeterProvider and passes in a Meter.
package otel
