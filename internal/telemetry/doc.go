// Package telemetry wires OpenTelemetry tracing and metrics for the daemon.
//
// Init installs global OTLP/HTTP tracer and meter providers when an endpoint is
// configured and leaves the no-op globals in place otherwise. Recorder turns
// stage executions into spans plus duration, attempt and outcome instruments so
// the workflow manager can report without knowing about exporters.
package telemetry
