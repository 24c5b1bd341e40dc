// Package ffmpeg runs the ffmpeg binary as a file-in/file-out black box.
//
// Tool executes argument lists and classifies failures as external tool
// errors. The builders in args.go produce argument lists for the operations
// the engine needs (trim, retime, freeze, placeholder, silence, tempo, pad,
// concat, mux) so callers and tests can inspect commands without running them.
package ffmpeg
