package narration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"montage/internal/logging"
	"montage/internal/media/ffmpeg"
	"montage/internal/media/ffprobe"
	"montage/internal/services"
	"montage/internal/speech"
)

// clip is an intermediate rendering inside the scoped temp dir.
type clip struct {
	path     string
	duration float64
}

// render synthesizes every chunk, joins them and probes the result. rate 0
// keeps the provider default.
func (a *Adapter) render(ctx context.Context, dir, label string, chunks []string, pauses Pauses, rate float64) (clip, error) {
	var parts []string
	for i, chunk := range chunks {
		// The trailing pause belongs to the last chunk only.
		p := pauses
		if i < len(chunks)-1 {
			p.Trailing = 0
		}
		files, err := a.synthesizeChunk(ctx, dir, fmt.Sprintf("%s-%03d", label, i), chunk, p, rate, true)
		if err != nil {
			return clip{}, err
		}
		parts = append(parts, files...)
	}

	listPath := filepath.Join(dir, label+".txt")
	if err := ffmpeg.WriteConcatList(listPath, parts); err != nil {
		return clip{}, err
	}
	joined := filepath.Join(dir, label+".wav")
	if err := a.ffmpeg.Run(ctx, ffmpeg.ConcatReencodeArgs(listPath, joined)...); err != nil {
		return clip{}, err
	}
	duration, err := ffprobe.Duration(ctx, a.prober, joined)
	if err != nil {
		if ctx.Err() != nil {
			return clip{}, ctx.Err()
		}
		return clip{}, services.Wrap(services.ErrMediaValidation, "narration", "probe", label, err)
	}
	return clip{path: joined, duration: duration}, nil
}

// synthesizeChunk calls the provider for one chunk with retries on transient
// errors. A structural error switches shape once: markup is dropped, or a
// plain chunk is split in half.
func (a *Adapter) synthesizeChunk(ctx context.Context, dir, name, chunk string, pauses Pauses, rate float64, canSwitch bool) ([]string, error) {
	payload, markup := a.strategy.Render(chunk, pauses)
	path, err := a.call(ctx, dir, name, payload, markup, rate)
	if err == nil {
		return []string{path}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if speech.Classify(err) != services.ErrStructural || !canSwitch {
		return nil, err
	}

	logger := logging.WithContext(ctx, a.logger)
	if markup {
		logger.Info("provider rejected markup; retrying as plain text",
			logging.String("chunk", name),
			logging.String(logging.FieldEventType, "narration_markup_dropped"),
		)
		path, err := a.call(ctx, dir, name+"-plain", PlainStrategy{}.render(chunk), false, rate)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	left, right, ok := halve(chunk)
	if !ok {
		return nil, err
	}
	logger.Info("provider rejected chunk; splitting in half",
		logging.String("chunk", name),
		logging.Int("units", Units(chunk)),
		logging.String(logging.FieldEventType, "narration_chunk_split"),
	)
	var files []string
	for i, half := range []string{left, right} {
		p := pauses
		if i == 0 {
			p.Trailing = 0
		}
		got, err := a.synthesizeChunk(ctx, dir, fmt.Sprintf("%s-%c", name, 'a'+i), half, p, rate, false)
		if err != nil {
			return nil, err
		}
		files = append(files, got...)
	}
	return files, nil
}

// call performs one provider request, retrying transient failures up to
// MaxRetries more times, and writes the audio into dir.
func (a *Adapter) call(ctx context.Context, dir, name, payload string, markup bool, rate float64) (string, error) {
	req := speech.Request{
		Payload:  payload,
		Markup:   markup,
		Voice:    a.opts.Voice,
		Language: a.opts.Language,
		Rate:     rate,
		Volume:   a.opts.Volume,
	}
	var lastErr error
	attempts := a.opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		audio, format, err := a.provider.Synthesize(ctx, req)
		if err == nil {
			if len(audio) == 0 {
				return "", services.Wrap(services.ErrMediaValidation, "narration", "synthesize", "provider returned no audio", nil)
			}
			path := filepath.Join(dir, name+format.Extension())
			if err := os.WriteFile(path, audio, 0o644); err != nil {
				return "", fmt.Errorf("narration: write chunk: %w", err)
			}
			return path, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		marker := speech.Classify(err)
		if marker != services.ErrTransient {
			return "", services.Wrap(marker, "narration", "synthesize", name, err)
		}
		if attempt == attempts {
			break
		}
		logging.WithContext(ctx, a.logger).Debug("transient speech failure; retrying",
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if err := a.sleep(ctx, a.opts.Backoff*time.Duration(1<<(attempt-1))); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrTransient, "narration", "synthesize",
		fmt.Sprintf("%s: %d retries exhausted", name, a.opts.MaxRetries), lastErr)
}
