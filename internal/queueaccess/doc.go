// Package queueaccess gives the CLI one run-access surface whether or not the
// daemon is up: it prefers the daemon's HTTP API and falls back to opening the
// run store directly.
package queueaccess
