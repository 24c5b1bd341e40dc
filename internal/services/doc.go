// Package services holds the small shared vocabulary of the montage pipeline:
// context keys for run, task, stage, lane, request and segment identifiers,
// plus the error markers stage handlers use to say whether a failure should
// be retried, surfaced as a validation problem, or fail the run outright.
package services
