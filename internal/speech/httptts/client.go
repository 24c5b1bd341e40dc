package httptts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"montage/internal/services"
	"montage/internal/speech"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBody       = 512
)

// Config captures the runtime settings required to talk to the service.
type Config struct {
	Endpoint       string
	APIKey         string
	Voice          string
	Language       string
	TimeoutSeconds int
}

// Client talks to the synthesis service.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client using the supplied configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("httptts: endpoint required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("httptts: parse endpoint: %w", err)
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Endpoint:       endpoint,
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Voice:          strings.TrimSpace(cfg.Voice),
			Language:       strings.TrimSpace(cfg.Language),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type generateRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	SSML     bool    `json:"ssml,omitempty"`
}

type generateResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
	Error       string `json:"error,omitempty"`
}

type capabilitiesResponse struct {
	SSML     bool `json:"ssml"`
	Speed    bool `json:"speed"`
	MaxChars int  `json:"max_chars"`
}

// Synthesize implements speech.Provider.
func (c *Client) Synthesize(ctx context.Context, req speech.Request) ([]byte, speech.Format, error) {
	text := strings.TrimSpace(req.Payload)
	if text == "" {
		return nil, "", &speech.Error{StatusCode: http.StatusBadRequest, Message: "empty text"}
	}
	payload := generateRequest{
		Text:     text,
		Voice:    firstNonEmpty(req.Voice, c.cfg.Voice),
		Language: firstNonEmpty(req.Language, c.cfg.Language),
		Speed:    req.Rate,
		Volume:   req.Volume,
		SSML:     req.Markup,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("httptts: encode body: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/generate", encoded)
	if err != nil {
		return nil, "", err
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, "", services.Wrap(services.ErrMediaValidation, "speech", "decode response", "response is not JSON", err)
	}
	if msg := strings.TrimSpace(decoded.Error); msg != "" {
		return nil, "", &speech.Error{StatusCode: http.StatusUnprocessableEntity, Message: msg}
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioBase64)
	if err != nil {
		return nil, "", services.Wrap(services.ErrMediaValidation, "speech", "decode audio", "invalid base64 audio", err)
	}
	if len(audio) == 0 {
		return nil, "", services.Wrap(services.ErrMediaValidation, "speech", "decode audio", "empty audio payload", nil)
	}
	format := speech.Format(strings.ToLower(strings.TrimSpace(decoded.Format)))
	if format == "" {
		sniffed, ok := speech.SniffFormat(audio)
		if !ok {
			return nil, "", services.Wrap(services.ErrMediaValidation, "speech", "decode audio", "unrecognized audio container", nil)
		}
		format = sniffed
	}
	return audio, format, nil
}

// Capabilities implements speech.Provider. Services without a capabilities
// endpoint are treated as plain-text only.
func (c *Client) Capabilities(ctx context.Context) (speech.Capabilities, error) {
	body, err := c.do(ctx, http.MethodGet, "/capabilities", nil)
	if err != nil {
		var provErr *speech.Error
		if errors.As(err, &provErr) && (provErr.StatusCode == http.StatusNotFound || provErr.StatusCode == http.StatusMethodNotAllowed) {
			return speech.Capabilities{}, nil
		}
		return speech.Capabilities{}, err
	}
	var decoded capabilitiesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return speech.Capabilities{}, fmt.Errorf("httptts: decode capabilities: %w", err)
	}
	return speech.Capabilities{Markup: decoded.SSML, Rate: decoded.Speed, MaxChars: decoded.MaxChars}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("httptts: new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httptts: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httptts: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &speech.Error{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
