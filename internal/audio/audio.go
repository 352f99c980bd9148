// Package audio provides microphone capture and speaker playback on top of
// PortAudio. Capture emits fixed-duration PCM frames (s16le) into a bounded
// queue; when the consumer falls behind, the newest frame is dropped so that
// the pipeline always works on the freshest audio available.
package audio

import (
	"github.com/gordonklaus/portaudio"
)

// Init initialises the PortAudio runtime. Must be called once per process
// before any Capture or Player is started.
func Init() error {
	return portaudio.Initialize()
}

// Terminate releases the PortAudio runtime. Call once at process exit, after
// all streams are closed.
func Terminate() error {
	return portaudio.Terminate()
}

// samplesToBytes converts int16 samples to little-endian byte order, the
// format streaming STT providers expect for linear16 audio.
func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// bytesToSamples converts little-endian PCM bytes back to int16 samples.
// A trailing odd byte is ignored.
func bytesToSamples(pcm []byte, out []int16) int {
	n := len(pcm) / 2
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return n
}
