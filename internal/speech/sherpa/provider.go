package sherpa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"montage/internal/services"
	"montage/internal/speech"
)

// Config locates the VITS model files.
type Config struct {
	ModelDir  string
	Model     string
	Tokens    string
	DataDir   string
	SpeakerID int
	Threads   int
}

// engine is the subset of the offline TTS used here.
type engine interface {
	Generate(text string, sid int, speed float32) ([]float32, int)
	Close()
}

type offlineEngine struct {
	tts *sherpa.OfflineTts
}

func (e offlineEngine) Generate(text string, sid int, speed float32) ([]float32, int) {
	audio := e.tts.Generate(text, sid, speed)
	if audio == nil {
		return nil, 0
	}
	return audio.Samples, audio.SampleRate
}

func (e offlineEngine) Close() {
	sherpa.DeleteOfflineTts(e.tts)
}

// Provider synthesizes speech with a loaded model. Generation is serialized;
// the engine is not safe for concurrent use.
type Provider struct {
	mu        sync.Mutex
	engine    engine
	speakerID int
}

// ModelFiles returns the model and token paths cfg resolves to.
func ModelFiles(cfg Config) (model, tokens string) {
	return resolve(cfg.ModelDir, cfg.Model), resolve(cfg.ModelDir, cfg.Tokens)
}

// New loads the model described by cfg.
func New(cfg Config) (*Provider, error) {
	model, tokens := ModelFiles(cfg)
	if model == "" || tokens == "" {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "load sherpa model", "speech.sherpa_model and speech.sherpa_tokens are required", nil)
	}
	for _, path := range []string{model, tokens} {
		if _, err := os.Stat(path); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "speech", "load sherpa model", "model file missing", err)
		}
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}

	config := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:   model,
				Tokens:  tokens,
				DataDir: resolve(cfg.ModelDir, cfg.DataDir),
			},
			Provider:   "cpu",
			NumThreads: threads,
			Debug:      0,
		},
	}
	tts := sherpa.NewOfflineTts(&config)
	if tts == nil {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "load sherpa model", "failed to create sherpa tts instance", nil)
	}
	return newWithEngine(offlineEngine{tts: tts}, cfg.SpeakerID), nil
}

func newWithEngine(e engine, speakerID int) *Provider {
	return &Provider{engine: e, speakerID: speakerID}
}

// Close releases the model.
func (p *Provider) Close() {
	if p == nil || p.engine == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.Close()
	p.engine = nil
}

// Synthesize implements speech.Provider.
func (p *Provider) Synthesize(ctx context.Context, req speech.Request) ([]byte, speech.Format, error) {
	if req.Markup {
		return nil, "", &speech.Error{StatusCode: http.StatusUnsupportedMediaType, Message: "markup unsupported"}
	}
	text := strings.TrimSpace(req.Payload)
	if text == "" {
		return nil, "", &speech.Error{StatusCode: http.StatusBadRequest, Message: "empty text"}
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	speed := float32(1)
	if req.Rate > 0 {
		speed = float32(req.Rate)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return nil, "", errors.New("sherpa: provider closed")
	}
	samples, sampleRate := p.engine.Generate(text, p.speakerID, speed)
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, "", services.Wrap(services.ErrMediaValidation, "speech", "sherpa generate", "engine produced no samples", nil)
	}
	if req.Volume > 0 && req.Volume != 1 {
		scaled := make([]float32, len(samples))
		for i, s := range samples {
			scaled[i] = s * float32(req.Volume)
		}
		samples = scaled
	}
	wav, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("sherpa: encode wav: %w", err)
	}
	return wav, speech.FormatWAV, nil
}

// Capabilities implements speech.Provider.
func (p *Provider) Capabilities(context.Context) (speech.Capabilities, error) {
	return speech.Capabilities{Markup: false, Rate: true}, nil
}

func resolve(dir, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
