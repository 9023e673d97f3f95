// Package telemetry instruments turns with Prometheus metrics and
// OpenTelemetry traces.
//
// Metrics and Tracing are pipeline middleware. Metrics counts turns, turn
// failures, and sent activities, and observes turn duration, labelled by
// channel. Tracing opens a span per turn and a child span per outbound send.
//
// Init configures the global OpenTelemetry tracer provider with an OTLP gRPC
// exporter. When tracing is disabled it leaves the noop provider in place.
package telemetry
