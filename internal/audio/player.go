package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/novabot/nova/pkg/provider/tts"
)

// playbackFrameFraction divides a second into playback frames; writing in
// small frames keeps the gap between an interrupt request and silence short.
const playbackFrameFraction = 10 // 100ms frames

// Player writes PCM clips to the default output device. The zero value is
// ready to use. Play opens a fresh output stream per clip because clips may
// arrive with differing sample rates (cloud vs. local synthesis).
type Player struct{}

// Play writes clip to the default output device frame by frame. Between
// frames it polls interrupted; when interrupted returns true, playback stops
// within one frame and Play returns nil. interrupted may be nil.
func (p *Player) Play(ctx context.Context, clip *tts.Clip, interrupted func() bool) error {
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}

	samplesPerFrame := clip.SampleRate * clip.Channels / playbackFrameFraction
	if samplesPerFrame <= 0 {
		return fmt.Errorf("audio player: invalid clip format %d Hz / %d ch", clip.SampleRate, clip.Channels)
	}
	buf := make([]int16, samplesPerFrame)

	stream, err := portaudio.OpenDefaultStream(
		0, clip.Channels, float64(clip.SampleRate), len(buf), buf,
	)
	if err != nil {
		return fmt.Errorf("audio player: open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("audio player: start stream: %w", err)
	}
	defer stream.Stop()

	bytesPerFrame := samplesPerFrame * 2
	for off := 0; off < len(clip.PCM); off += bytesPerFrame {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if interrupted != nil && interrupted() {
			return nil
		}

		end := off + bytesPerFrame
		if end > len(clip.PCM) {
			end = len(clip.PCM)
		}

		// Zero-pad the final partial frame.
		clear(buf)
		bytesToSamples(clip.PCM[off:end], buf)

		if err := stream.Write(); err != nil {
			return fmt.Errorf("audio player: write: %w", err)
		}
	}
	return nil
}
