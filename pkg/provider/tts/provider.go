// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI audio/speech)
// or a local engine (e.g., espeak-ng) and presents a uniform interface: one
// Request in, one PCM Clip out. Playback, queueing, and interruption are the
// caller's concern.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel.
type Provider interface {
	// Synthesize converts req.Text into a PCM audio clip. The returned Clip
	// always carries a valid SampleRate and Channels describing its PCM data.
	//
	// Returns an error if the text is empty, the provider cannot be reached,
	// or ctx is cancelled before synthesis completes.
	Synthesize(ctx context.Context, req Request) (*Clip, error)
}
