package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// Format identifies the container of synthesized audio bytes.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMP3:
		return ".mp3"
	default:
		return ".wav"
	}
}

// SniffFormat guesses the container from leading bytes.
func SniffFormat(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, true
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return FormatMP3, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, true
	default:
		return "", false
	}
}

// Request is one synthesis call.
type Request struct {
	// Payload is plain text, or SSML when Markup is set.
	Payload  string
	Markup   bool
	Voice    string
	Language string
	// Rate is the speaking rate multiplier; 0 means the provider default.
	Rate   float64
	Volume float64
}

// Capabilities advertises optional provider features.
type Capabilities struct {
	Markup   bool
	Rate     bool
	MaxChars int
}

// Provider synthesizes speech.
type Provider interface {
	Synthesize(ctx context.Context, req Request) ([]byte, Format, error)
	Capabilities(ctx context.Context) (Capabilities, error)
}

// Error is a provider-reported failure.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "no detail"
	}
	if e.StatusCode == 0 {
		return "speech provider: " + msg
	}
	return fmt.Sprintf("speech provider: status %d: %s", e.StatusCode, msg)
}
