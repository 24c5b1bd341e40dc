package ffmpeg

import (
	"strconv"
)

// Encoding captures the output encoding shared by every video artifact so
// intermediate clips concatenate without re-encoding.
type Encoding struct {
	Width      int
	Height     int
	FPS        int
	VideoCodec string
	AudioCodec string
	CRF        int
	SampleRate int
}

// Seconds formats a duration the way ffmpeg expects it.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func (e Encoding) videoOutput() []string {
	codec := e.VideoCodec
	if codec == "" {
		codec = "libx264"
	}
	args := []string{"-c:v", codec, "-pix_fmt", "yuv420p"}
	if e.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(e.CRF))
	}
	if e.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(e.FPS))
	}
	return args
}

// ScaleFilter fits the input into the frame, padding the remainder.
func (e Encoding) ScaleFilter() string {
	if e.Width <= 0 || e.Height <= 0 {
		return "setsar=1"
	}
	w, h := strconv.Itoa(e.Width), strconv.Itoa(e.Height)
	return "scale=" + w + ":" + h + ":force_original_aspect_ratio=decrease,pad=" + w + ":" + h + ":(ow-iw)/2:(oh-ih)/2,setsar=1"
}

// VideoFilterArgs cuts [start, start+inDuration) from in, applies filter to the
// video stream, normalizes the frame size and writes a silent clip to out.
func VideoFilterArgs(in, out string, start, inDuration float64, filter string, enc Encoding) []string {
	graph := enc.ScaleFilter()
	if filter != "" {
		graph = filter + "," + graph
	}
	args := []string{}
	if start > 0 {
		args = append(args, "-ss", Seconds(start))
	}
	if inDuration > 0 {
		args = append(args, "-t", Seconds(inDuration))
	}
	args = append(args, "-i", in, "-vf", graph, "-an")
	args = append(args, enc.videoOutput()...)
	return append(args, out)
}

// FilterComplexArgs runs a complex graph over in with a single labelled video output.
func FilterComplexArgs(in, out string, start, inDuration float64, graph, label string, enc Encoding) []string {
	args := []string{}
	if start > 0 {
		args = append(args, "-ss", Seconds(start))
	}
	if inDuration > 0 {
		args = append(args, "-t", Seconds(inDuration))
	}
	args = append(args, "-i", in, "-filter_complex", graph, "-map", "["+label+"]", "-an")
	args = append(args, enc.videoOutput()...)
	return append(args, out)
}

// ColorArgs renders a solid-color clip of duration seconds.
func ColorArgs(out, color string, duration float64, enc Encoding) []string {
	if color == "" {
		color = "black"
	}
	fps := enc.FPS
	if fps <= 0 {
		fps = 30
	}
	size := strconv.Itoa(enc.Width) + "x" + strconv.Itoa(enc.Height)
	source := "color=c=" + color + ":s=" + size + ":r=" + strconv.Itoa(fps) + ":d=" + Seconds(duration)
	args := []string{"-f", "lavfi", "-i", source}
	args = append(args, enc.videoOutput()...)
	return append(args, "-t", Seconds(duration), out)
}

// CardArgs renders a solid-color card with centered text lines drawn over it.
func CardArgs(out, color string, duration float64, drawtext string, enc Encoding) []string {
	args := ColorArgs(out, color, duration, enc)
	if drawtext == "" {
		return args
	}
	// Insert the text filter before the encoder flags.
	withFilter := make([]string, 0, len(args)+2)
	withFilter = append(withFilter, args[:4]...)
	withFilter = append(withFilter, "-vf", drawtext)
	return append(withFilter, args[4:]...)
}

// SilenceArgs produces a silent audio clip.
func SilenceArgs(out string, duration float64, sampleRate int) []string {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return []string{
		"-f", "lavfi",
		"-i", "anullsrc=r=" + strconv.Itoa(sampleRate) + ":cl=mono",
		"-t", Seconds(duration),
		"-c:a", "pcm_s16le",
		out,
	}
}

// AtempoArgs time-stretches audio by rate without changing pitch.
func AtempoArgs(in, out string, rate float64) []string {
	return []string{"-i", in, "-filter:a", "atempo=" + strconv.FormatFloat(rate, 'f', 4, 64), "-c:a", "pcm_s16le", out}
}

// PadArgs extends audio with trailing silence to exactly total seconds.
func PadArgs(in, out string, total float64) []string {
	return []string{"-i", in, "-af", "apad=whole_dur=" + Seconds(total), "-t", Seconds(total), "-c:a", "pcm_s16le", out}
}

// ConcatArgs joins the files named in a concat demuxer list without re-encoding.
func ConcatArgs(listPath, out string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", out}
}

// ConcatReencodeArgs joins audio files listed in listPath and re-encodes them as PCM.
func ConcatReencodeArgs(listPath, out string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", listPath, "-c:a", "pcm_s16le", out}
}

// MuxArgs combines a video-only and an audio-only input, applying an optional
// subtitle/overlay video filter.
func MuxArgs(video, audio, out, videoFilter string, enc Encoding) []string {
	args := []string{"-i", video, "-i", audio}
	if videoFilter != "" {
		args = append(args, "-vf", videoFilter)
		args = append(args, enc.videoOutput()...)
	} else {
		args = append(args, "-c:v", "copy")
	}
	codec := enc.AudioCodec
	if codec == "" {
		codec = "aac"
	}
	return append(args,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:a", codec, "-b:a", "192k",
		"-shortest", "-movflags", "+faststart",
		out,
	)
}
