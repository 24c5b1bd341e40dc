// Package mixer sums narration, background music and sound effects into one
// normalized track.
//
// Planning is pure: Envelope and GainProgram describe background music gain
// over time, and Plan turns an Input into ffmpeg arguments plus the AudioBus
// layout. Mixer.Mix runs the plan.
package mixer
