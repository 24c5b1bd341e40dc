// Package daemon coordinates the long-running montage process.
//
// It wires configuration, the run store, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start refuses to run when startup checks fail, requeues tasks a crashed
// process left running, then launches the workflow lanes and the HTTP control
// API (run listing, detail, submission, approval, and retry).
//
// Keep orchestration logic here: stage behavior lives in the pipeline package
// and task dispatch in the workflow package.
package daemon
