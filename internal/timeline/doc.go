// Package timeline lays reconciled segments, intro and outro cards and
// subtitle overlays out on one track with cumulative offsets.
package timeline
