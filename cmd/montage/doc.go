// Package main hosts the montage CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into run operations:
// submitting runs, listing and inspecting them, approving reviews, retrying
// failures, and one-off segment reconciliation. Commands talk to the daemon's
// HTTP API when it is up and fall back to the run store otherwise. The
// `daemon` command runs the daemon in the foreground.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
