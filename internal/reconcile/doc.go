// Package reconcile pairs each segment's narration with its video clip so
// both end up the same length within tolerance. Segments are independent and
// reconciled concurrently.
package reconcile
