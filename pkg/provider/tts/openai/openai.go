// Package openai provides a TTS provider backed by the OpenAI audio/speech
// API. It implements the tts.Provider interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/novabot/nova/pkg/provider/tts"
)

const (
	// DefaultModel is the default OpenAI speech model.
	DefaultModel = "gpt-4o-mini-tts"

	// DefaultVoice is the default voice used when a request does not name one.
	DefaultVoice = "alloy"
)

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI audio/speech API.
// Responses are requested in WAV format and decoded to raw PCM.
type Provider struct {
	client oai.Client
	model  string
	voice  string
	speed  float64
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	model   string
	voice   string
	speed   float64
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithModel sets the speech model (e.g., "gpt-4o-mini-tts", "tts-1").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice sets the default voice used when a request does not name one.
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithSpeed sets the default speaking rate (0.25–4.0).
func WithSpeed(speed float64) Option {
	return func(c *config) {
		c.speed = speed
	}
}

// New constructs a new OpenAI TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}

	cfg := &config{
		model: DefaultModel,
		voice: DefaultVoice,
		speed: 1.0,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
		speed:  cfg.speed,
	}, nil
}

// Synthesize sends req.Text to the OpenAI audio/speech endpoint and decodes
// the WAV response into a PCM clip.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if req.Text == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	speed := req.Speed
	if speed == 0 {
		speed = p.speed
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
		Speed:          oai.Float(speed),
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech request: %w", err)
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read response: %w", err)
	}

	clip, err := tts.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("openai tts: decode response: %w", err)
	}
	return clip, nil
}
