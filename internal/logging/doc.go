// Package logging builds the slog loggers used by the daemon and CLI.
//
// Two handlers are available: a console handler that prints aligned key=value
// lines for humans and the stdlib JSON handler for machines. WithContext pulls
// run, task, stage, lane, request and segment identifiers off a context so
// stage code never has to pass them by hand.
package logging
