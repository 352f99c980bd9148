// Package speech turns response text into audible output. A single worker
// drains a FIFO queue of utterances, synthesizes each one through the
// configured TTS provider, and plays the clip on the default output device.
// Playback can be interrupted mid-clip; utterances queued behind the
// interrupted one still play.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/novabot/nova/internal/observe"
	"github.com/novabot/nova/pkg/provider/tts"
)

const defaultQueueSize = 32

// ErrStopped is returned by Speak after Stop has been called.
var ErrStopped = errors.New("speech: synthesizer stopped")

// ErrQueueFull is returned by Speak when the utterance queue is full.
var ErrQueueFull = errors.New("speech: utterance queue full")

// Player plays a decoded PCM clip. Playback implementations must poll
// interrupted between frames and stop promptly when it returns true.
type Player interface {
	Play(ctx context.Context, clip *tts.Clip, interrupted func() bool) error
}

// Config configures a [Synthesizer].
type Config struct {
	// Voice is the voice identifier passed to the provider on every request.
	Voice string

	// Speed is the playback speed multiplier. Zero means provider default.
	Speed float64

	// QueueSize is the capacity of the utterance queue. Defaults to 32.
	QueueSize int

	// Metrics records synthesis latency per utterance. Optional; nil
	// disables recording.
	Metrics *observe.Metrics
}

// Synthesizer converts text to speech in the background. Utterances are
// spoken strictly in the order they were enqueued. All methods are safe for
// concurrent use.
type Synthesizer struct {
	provider tts.Provider
	player   Player
	cfg      Config

	queue chan string

	speaking    atomic.Bool
	interrupted atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a [Synthesizer] using provider for synthesis and player for
// output.
func New(provider tts.Provider, player Player, cfg Config) *Synthesizer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Synthesizer{
		provider: provider,
		player:   player,
		cfg:      cfg,
		queue:    make(chan string, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the background worker.
func (s *Synthesizer) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Speak enqueues text to be spoken after everything already queued. Text is
// trimmed of surrounding whitespace; empty text is ignored.
func (s *Synthesizer) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.queue <- text:
		return nil
	case <-s.done:
		return ErrStopped
	default:
		slog.Warn("utterance queue full, dropping", "text", text)
		return ErrQueueFull
	}
}

// IsSpeaking reports whether an utterance is currently being synthesized or
// played.
func (s *Synthesizer) IsSpeaking() bool { return s.speaking.Load() }

// Interrupt stops the current utterance within one playback frame. Utterances
// already queued are unaffected and play next.
func (s *Synthesizer) Interrupt() {
	s.interrupted.Store(true)
}

// Stop interrupts playback and shuts the worker down. Safe to call multiple
// times; blocks until the worker has exited.
func (s *Synthesizer) Stop() {
	s.stopOnce.Do(func() {
		s.Interrupt()
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Synthesizer) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case text := <-s.queue:
			s.speak(ctx, text)
		}
	}
}

// speak synthesizes and plays one utterance. Synthesis failures are logged
// and skipped so one bad utterance never stalls the queue.
func (s *Synthesizer) speak(ctx context.Context, text string) {
	s.interrupted.Store(false)
	s.speaking.Store(true)
	defer s.speaking.Store(false)

	start := time.Now()
	clip, err := s.provider.Synthesize(ctx, tts.Request{
		Text:  text,
		Voice: s.cfg.Voice,
		Speed: s.cfg.Speed,
	})
	if err != nil {
		slog.Warn("speech synthesis failed", "error", err)
		return
	}
	s.cfg.Metrics.RecordTTSDuration(ctx, time.Since(start).Seconds())
	if s.interrupted.Load() {
		return
	}

	err = s.player.Play(ctx, clip, func() bool {
		if s.interrupted.Load() {
			return true
		}
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	})
	if err != nil {
		slog.Warn("audio playback failed", "error", err)
	}
}
