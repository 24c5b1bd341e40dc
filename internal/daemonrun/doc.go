// Package daemonrun hosts the montaged process: it builds the logger,
// telemetry exporters, stage services and workflow manager from config, starts
// the daemon, and blocks until a termination signal arrives.
package daemonrun
