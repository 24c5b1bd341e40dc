// Package speech defines the synthesis provider contract consumed by the
// narration adapter.
//
// Providers are single-shot: they perform one request and report failures as
// *Error values or transport errors. Classify maps those onto the service
// markers the adapter uses to choose between retrying, switching strategy and
// falling back. Discover asks a provider for its capabilities once at startup.
package speech
