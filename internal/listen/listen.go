// Package listen maintains a resilient streaming transcription channel: it
// pumps captured audio frames into an STT session and republishes final
// transcripts on a bounded queue. When the session fails, it reconnects with
// exponential backoff while the rest of the pipeline keeps running.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novabot/nova/internal/observe"
	"github.com/novabot/nova/pkg/provider/stt"
)

// Default reconnection and queue parameters.
const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	defaultQueueSize      = 200

	// healthySessionAge is how long a session must survive before a loss is
	// treated as fresh rather than a continuation of a flapping provider.
	healthySessionAge = 30 * time.Second
)

// errSessionEnded signals that the provider closed its transcript channels,
// which means the connection dropped and a reconnect is needed.
var errSessionEnded = errors.New("listen: transcription session ended")

// errSourceClosed signals that the audio source channel was closed, which
// ends the channel for good (no reconnect).
var errSourceClosed = errors.New("listen: audio source closed")

// Config configures a [Channel].
type Config struct {
	// Stream is the audio format and recognition configuration passed to the
	// provider on every (re)connect.
	Stream stt.StreamConfig

	// QueueSize is the capacity of the transcript output queue. When full,
	// the newest transcript is dropped with a warning. Defaults to 200.
	QueueSize int

	// InitialBackoff is the delay before the first reconnect attempt. The
	// delay doubles per failed connect or lost session up to MaxBackoff and
	// resets after a session that produced transcripts or held up for a
	// while. Defaults to 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Defaults to 10s.
	MaxBackoff time.Duration

	// Metrics records session lifetimes, reconnects, and dropped transcripts.
	// Optional; nil disables recording.
	Metrics *observe.Metrics
}

// Channel connects an audio frame source to an STT provider and emits final
// transcripts. All methods are safe for concurrent use.
type Channel struct {
	provider stt.Provider
	source   <-chan []byte
	cfg      Config

	out       chan stt.Transcript
	dropped   atomic.Uint64
	published atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// sleep is replaced in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a [Channel] reading frames from source. Zero-value config
// fields are replaced with defaults.
func New(provider stt.Provider, source <-chan []byte, cfg Config) *Channel {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	c := &Channel{
		provider: provider,
		source:   source,
		cfg:      cfg,
		out:      make(chan stt.Transcript, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	c.sleep = c.sleepBackoff
	return c
}

// Start begins the connect/pump/reconnect loop in a background goroutine.
func (c *Channel) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Transcripts returns the channel of final transcripts. The channel is closed
// after Stop (or context cancellation) once the session is released.
func (c *Channel) Transcripts() <-chan stt.Transcript { return c.out }

// Dropped returns the number of transcripts discarded because the queue was
// full.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// Stop halts the channel and closes the transcript output. Safe to call
// multiple times; blocks until the run loop has exited.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// run is the connect/pump/reconnect loop.
func (c *Channel) run(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.out)

	backoff := c.cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		if c.stopped(ctx) {
			return
		}

		sess, err := c.provider.StartStream(ctx, c.cfg.Stream)
		if err != nil {
			if c.stopped(ctx) {
				return
			}
			slog.Warn("transcription connect failed, retrying",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err,
			)
			if c.sleep(ctx, backoff) != nil {
				return
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}

		if attempt > 0 {
			slog.Info("transcription reconnected", "attempt", attempt+1)
		}

		start := time.Now()
		before := c.published.Load()
		err = c.pump(ctx, sess)
		_ = sess.Close()

		switch {
		case errors.Is(err, errSourceClosed):
			return
		case c.stopped(ctx):
			return
		}

		// A session that transcribed something (or held up for a while)
		// earns a fresh backoff. A provider that accepts the dial and then
		// drops the session keeps doubling instead of re-dialing in a tight
		// loop.
		age := time.Since(start)
		if c.published.Load() > before || age >= healthySessionAge {
			backoff = c.cfg.InitialBackoff
		}
		c.cfg.Metrics.RecordSTTSessionEnd(ctx, age.Seconds())
		slog.Warn("transcription session lost, reconnecting",
			"backoff", backoff,
			"error", err,
		)
		if c.sleep(ctx, backoff) != nil {
			return
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

// pump runs one session: audio in, transcripts out. Returns when the session
// fails, the source closes, or the channel is stopped.
func (c *Channel) pump(ctx context.Context, sess stt.SessionHandle) error {
	g, gctx := errgroup.WithContext(ctx)

	// Audio frames → provider.
	g.Go(func() error {
		for {
			select {
			case frame, ok := <-c.source:
				if !ok {
					return errSourceClosed
				}
				if err := sess.SendAudio(frame); err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			case <-c.done:
				return nil
			}
		}
	})

	// Final transcripts → output queue.
	g.Go(func() error {
		for {
			select {
			case t, ok := <-sess.Finals():
				if !ok {
					return errSessionEnded
				}
				c.publish(t)
			case <-gctx.Done():
				return gctx.Err()
			case <-c.done:
				return nil
			}
		}
	})

	// Partials are only logged; they never reach the output queue.
	g.Go(func() error {
		for {
			select {
			case t, ok := <-sess.Partials():
				if !ok {
					return errSessionEnded
				}
				if t.Text != "" {
					slog.Debug("interim transcript", "text", t.Text)
				}
			case <-gctx.Done():
				return gctx.Err()
			case <-c.done:
				return nil
			}
		}
	})

	return g.Wait()
}

// publish enqueues a final transcript, dropping it when the queue is full.
func (c *Channel) publish(t stt.Transcript) {
	if t.Text == "" {
		return
	}
	c.published.Add(1)
	select {
	case c.out <- t:
	default:
		n := c.dropped.Add(1)
		c.cfg.Metrics.RecordDroppedFrame(context.Background(), "transcript")
		slog.Warn("transcript queue full, dropping newest",
			"dropped_total", n,
			"text", t.Text,
		)
	}
}

// stopped reports whether the channel was stopped or the context cancelled.
func (c *Channel) stopped(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleepBackoff waits for d, or returns early when the context is cancelled
// or the channel is stopped.
func (c *Channel) sleepBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.New("listen: stopped")
	}
}
