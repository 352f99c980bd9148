// Package espeak provides a local, offline TTS provider backed by the
// espeak-ng command-line synthesiser. It implements the tts.Provider
// interface and is intended as a fallback when no cloud TTS is reachable.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/novabot/nova/pkg/provider/tts"
)

const (
	// defaultBinary is the espeak-ng executable looked up on PATH.
	defaultBinary = "espeak-ng"

	// defaultWPM is the espeak speaking rate in words per minute that
	// corresponds to a Speed of 1.0.
	defaultWPM = 175
)

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBinary overrides the espeak-ng executable path.
func WithBinary(path string) Option {
	return func(p *Provider) {
		p.binary = path
	}
}

// WithVoice sets the default espeak voice (e.g., "en-us", "de").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// Provider implements tts.Provider by invoking espeak-ng as a subprocess and
// decoding the WAV it writes to stdout.
type Provider struct {
	binary string
	voice  string
}

// New creates a new espeak Provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary: defaultBinary,
		voice:  "en-us",
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize runs espeak-ng with req.Text and returns the decoded PCM clip.
// req.Voice overrides the provider default; req.Speed scales the speaking
// rate around the espeak default of 175 words per minute.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if req.Text == "" {
		return nil, errors.New("espeak: text must not be empty")
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	wpm := defaultWPM
	if req.Speed > 0 {
		wpm = int(float64(defaultWPM) * req.Speed)
	}

	args := []string{
		"--stdout",
		"-v", voice,
		"-s", strconv.Itoa(wpm),
		req.Text,
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("espeak: run %s: %w: %s", p.binary, err, stderr.String())
		}
		return nil, fmt.Errorf("espeak: run %s: %w", p.binary, err)
	}

	clip, err := tts.DecodeWAV(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("espeak: decode output: %w", err)
	}
	return clip, nil
}
