// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: anything that can inspect a media path; Tool shells out to ffprobe
//
// Validate turns a Result into a pass/fail integrity verdict for freshly
// produced artifacts (missing file, zero size, zero duration, no streams).
package ffprobe
