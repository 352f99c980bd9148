package tts

// Request carries everything a TTS provider needs to synthesise one utterance.
type Request struct {
	// Text is the utterance to synthesise. Must be non-empty.
	Text string

	// Voice is the provider-specific voice identifier (e.g., "alloy").
	// Empty selects the provider default.
	Voice string

	// Speed adjusts speaking rate (0.25–4.0, 1.0 = default). Zero means
	// provider default.
	Speed float64
}

// Clip is a synthesised utterance as raw PCM with its audio format.
// Samples are signed 16-bit little-endian.
type Clip struct {
	// PCM holds the raw sample bytes (s16le, interleaved if multi-channel).
	PCM []byte

	// SampleRate is samples per second (e.g., 22050, 24000).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}
