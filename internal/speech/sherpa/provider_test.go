package sherpa

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montage/internal/services"
	"montage/internal/speech"
)

type fakeEngine struct {
	samples []float32
	rate    int
	speed   float32
	sid     int
	closed  bool
}

func (f *fakeEngine) Generate(_ string, sid int, speed float32) ([]float32, int) {
	f.sid = sid
	f.speed = speed
	return f.samples, f.rate
}

func (f *fakeEngine) Close() { f.closed = true }

func TestSynthesizeEncodesWAV(t *testing.T) {
	eng := &fakeEngine{samples: []float32{0, 0.5, -0.5, 1.5}, rate: 22050}
	p := newWithEngine(eng, 3)

	audio, format, err := p.Synthesize(context.Background(), speech.Request{Payload: "Hello there.", Rate: 1.25})
	require.NoError(t, err)
	assert.Equal(t, speech.FormatWAV, format)
	assert.Equal(t, float32(1.25), eng.speed)
	assert.Equal(t, 3, eng.sid)

	require.Len(t, audio, 44+4*2)
	assert.Equal(t, "RIFF", string(audio[:4]))
	assert.Equal(t, "WAVE", string(audio[8:12]))
	assert.Equal(t, uint32(22050), binary.LittleEndian.Uint32(audio[24:28]))
	last := int16(binary.LittleEndian.Uint16(audio[42+4*2:]))
	assert.Equal(t, int16(32767), last, "samples above 1 clip")
}

func TestSynthesizeRejectsMarkup(t *testing.T) {
	p := newWithEngine(&fakeEngine{samples: []float32{0}, rate: 16000}, 0)
	_, _, err := p.Synthesize(context.Background(), speech.Request{Payload: "<speak/>", Markup: true})
	assert.Equal(t, services.ErrStructural, speech.Classify(err))
}

func TestSynthesizeEmptyOutputIsMediaValidation(t *testing.T) {
	p := newWithEngine(&fakeEngine{}, 0)
	_, _, err := p.Synthesize(context.Background(), speech.Request{Payload: "hi"})
	assert.ErrorIs(t, err, services.ErrMediaValidation)
}

func TestCloseReleasesEngine(t *testing.T) {
	eng := &fakeEngine{samples: []float32{0}, rate: 16000}
	p := newWithEngine(eng, 0)
	p.Close()
	assert.True(t, eng.closed)
	_, _, err := p.Synthesize(context.Background(), speech.Request{Payload: "hi"})
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	caps, err := newWithEngine(&fakeEngine{}, 0).Capabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, speech.Capabilities{Rate: true}, caps)
}

func TestNewRequiresModelFiles(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, services.ErrConfiguration)
	_, err = New(Config{ModelDir: t.TempDir(), Model: "model.onnx", Tokens: "tokens.txt"})
	assert.ErrorIs(t, err, services.ErrConfiguration)
}
