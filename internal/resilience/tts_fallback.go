package resilience

import (
	"context"

	"github.com/novabot/nova/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// speech backends. Each backend has its own circuit breaker, so a cloud outage
// routes requests to the local engine without hammering the dead endpoint.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders speech using the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, req)
	})
}
