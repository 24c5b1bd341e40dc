package sherpa

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// EncodeWAV writes mono float samples as 16-bit PCM WAV.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := len(samples) * blockAlign

	buf := new(bytes.Buffer)
	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	header := []any{
		uint32(36 + dataSize),
	}
	for _, v := range header {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	for _, v := range []any{
		uint32(16),
		uint16(1),
		uint16(numChannels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitsPerSample),
	} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString("data")
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	pcm := make([]int16, len(samples))
	for i, sample := range samples {
		val := sample * 32767
		if val > 32767 {
			val = 32767
		}
		if val < -32768 {
			val = -32768
		}
		pcm[i] = int16(val)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
