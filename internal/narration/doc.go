// Package narration turns narration text and a target duration into a
// synthesized audio clip whose length is as close to the target as bounded
// pacing adjustments allow.
//
// The adapter synthesizes a baseline, then either accepts it, stretches its
// pauses (pad path) or speeds it up (speed path). Provider failures walk a
// fixed fallback chain that ends in a silence clip, so callers always receive
// an Artifact unless the context is cancelled or the adapter is misconfigured.
package narration
