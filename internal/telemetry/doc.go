// Package telemetry sets up OpenTelemetry tracing and metrics for convrag.
//
// With telemetry disabled, New returns an instance whose Tracer and Meter
// fall through to the global no-op providers, so instrumented code never
// needs to check whether export is on. Exporter failures degrade the
// instance instead of failing startup.
package telemetry
