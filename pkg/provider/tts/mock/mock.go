// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/novabot/nova/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize when Err is nil. If nil, a small valid
	// mono 16 kHz clip is returned instead.
	Clip *tts.Clip

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeFunc, if non-nil, overrides Clip and Err entirely.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (*tts.Clip, error)

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Req: req})
	fn := p.SynthesizeFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Clip != nil {
		return p.Clip, nil
	}
	return &tts.Clip{
		PCM:        make([]byte, 3200),
		SampleRate: 16000,
		Channels:   1,
	}, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
