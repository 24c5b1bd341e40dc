// Package api defines the transport-friendly view of montage runs.
//
// The daemon's HTTP control surface and the CLI both speak these DTOs. The
// converters flatten queue records into stable JSON shapes, RunService reads
// them straight from the store, and Client talks to a running daemon. Keep
// presentation and rendering out of this package; it only shapes data.
package api
