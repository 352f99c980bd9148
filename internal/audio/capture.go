package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/novabot/nova/internal/observe"
)

// Default capture parameters.
const (
	defaultSampleRate    = 16000
	defaultChannels      = 1
	defaultFrameDuration = 100 * time.Millisecond
	defaultQueueSize     = 50

	// maxReadFailures is how many consecutive device read failures are
	// tolerated before capture gives up (e.g. the microphone was unplugged).
	maxReadFailures = 10
)

// CaptureConfig configures a [Capture].
type CaptureConfig struct {
	// SampleRate is the capture sample rate in Hz. Defaults to 16000.
	SampleRate int

	// Channels is the number of input channels. Defaults to 1 (mono).
	Channels int

	// FrameDuration is the length of each emitted frame. Defaults to 100ms.
	FrameDuration time.Duration

	// QueueSize is the capacity of the frame queue. When the queue is full
	// the newest frame is dropped. Defaults to 50.
	QueueSize int

	// Metrics records dropped frames. Optional; nil disables recording.
	Metrics *observe.Metrics
}

// Capture reads PCM frames from the default input device and delivers them on
// a bounded channel. All methods are safe for concurrent use.
type Capture struct {
	cfg CaptureConfig

	frames  chan []byte
	dropped atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCapture creates a [Capture] with the given configuration. Zero-value
// config fields are replaced with defaults.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = defaultChannels
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = defaultFrameDuration
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Capture{
		cfg:    cfg,
		frames: make(chan []byte, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start opens the default input device and begins reading frames in a
// background goroutine until Stop is called or ctx is cancelled.
func (c *Capture) Start(ctx context.Context) error {
	samplesPerFrame := c.cfg.SampleRate * c.cfg.Channels * int(c.cfg.FrameDuration) / int(time.Second)
	buf := make([]int16, samplesPerFrame)

	stream, err := portaudio.OpenDefaultStream(
		c.cfg.Channels, 0, float64(c.cfg.SampleRate), len(buf), buf,
	)
	if err != nil {
		return fmt.Errorf("audio capture: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio capture: start stream: %w", err)
	}

	c.wg.Add(1)
	go c.readLoop(ctx, stream, buf, func() {
		_ = stream.Stop()
		_ = stream.Close()
	})
	return nil
}

// frameReader fills the capture buffer with the next frame. Satisfied by
// *portaudio.Stream.
type frameReader interface {
	Read() error
}

// readLoop reads from the device until stopped and pushes frames into the
// queue. Read failures pause one frame before retrying; after maxReadFailures
// in a row the device is considered gone and capture ends. release runs on
// exit, before the frame channel closes.
func (c *Capture) readLoop(ctx context.Context, r frameReader, buf []int16, release func()) {
	defer c.wg.Done()
	defer func() {
		release()
		close(c.frames)
	}()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if err := r.Read(); err != nil {
			failures++
			if failures >= maxReadFailures {
				slog.Error("audio capture giving up after repeated read failures",
					"failures", failures, "error", err)
				return
			}
			slog.Warn("audio capture read failed", "error", err)
			select {
			case <-time.After(c.cfg.FrameDuration):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			continue
		}
		failures = 0

		if !c.offer(samplesToBytes(buf)) {
			c.cfg.Metrics.RecordDroppedFrame(ctx, "capture")
			if n := c.dropped.Add(1); n%50 == 1 {
				slog.Warn("audio frame queue full, dropping newest frame",
					"dropped_total", n)
			}
		}
	}
}

// offer attempts a non-blocking enqueue of frame. Returns false when the
// queue is full (the frame is dropped).
func (c *Capture) offer(frame []byte) bool {
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

// Frames returns the channel of captured PCM frames. The channel is closed
// after Stop (or context cancellation) once the device is released.
func (c *Capture) Frames() <-chan []byte { return c.frames }

// Dropped returns the number of frames discarded because the queue was full.
func (c *Capture) Dropped() uint64 { return c.dropped.Load() }

// Stop halts capture and releases the input device. Safe to call multiple
// times; blocks until the read loop has exited.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}
