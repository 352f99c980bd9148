package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novabot/nova/pkg/provider/tts"
	ttsmock "github.com/novabot/nova/pkg/provider/tts/mock"
)

func clip(pcm string) *tts.Clip {
	return &tts.Clip{PCM: []byte(pcm), SampleRate: 24000, Channels: 1}
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Clip: clip("cloud-audio")}
	local := &ttsmock.Provider{Clip: clip("local-audio")}

	fg := NewFallbackGroup[tts.Provider](primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("espeak", local)

	err := fg.Execute(func(p tts.Provider) error {
		_, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.CallCount() != 1 || local.CallCount() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0", primary.CallCount(), local.CallCount())
	}
}

func TestFallbackGroup_FailoverOrder(t *testing.T) {
	primary := &ttsmock.Provider{Err: errEngineDown}
	second := &ttsmock.Provider{Err: errEngineDown}
	third := &ttsmock.Provider{Clip: clip("third-audio")}

	fg := NewFallbackGroup[tts.Provider](primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("elevenlabs", second)
	fg.AddFallback("espeak", third)

	got, err := ExecuteWithResult(fg, func(p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(context.Background(), tts.Request{Text: "hello"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.PCM) != "third-audio" {
		t.Fatalf("PCM = %q, want third-audio", string(got.PCM))
	}
	if primary.CallCount() != 1 || second.CallCount() != 1 || third.CallCount() != 1 {
		t.Fatalf("calls = %d/%d/%d, want 1/1/1",
			primary.CallCount(), second.CallCount(), third.CallCount())
	}
}

func TestFallbackGroup_AllFailWrapsLastError(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("openai 503")}
	local := &ttsmock.Provider{Err: errors.New("espeak binary not found")}

	fg := NewFallbackGroup[tts.Provider](primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("espeak", local)

	err := fg.Execute(func(p tts.Provider) error {
		_, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
		return err
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreakerAndRecovers(t *testing.T) {
	primary := &ttsmock.Provider{Err: errEngineDown}
	local := &ttsmock.Provider{Clip: clip("local-audio")}

	fg := NewFallbackGroup[tts.Provider](primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: 30 * time.Second,
		},
	})
	fg.AddFallback("espeak", local)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	fg.entries[0].breaker.now = func() time.Time { return clock }

	say := func() error {
		return fg.Execute(func(p tts.Provider) error {
			_, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
			return err
		})
	}

	// Two failures trip the primary's breaker; the third request must not
	// touch the dead backend.
	for i := 0; i < 3; i++ {
		if err := say(); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
	if primary.CallCount() != 2 {
		t.Fatalf("primary called %d times, want 2", primary.CallCount())
	}
	if local.CallCount() != 3 {
		t.Fatalf("fallback called %d times, want 3", local.CallCount())
	}

	// After the reset timeout the primary gets a probe again.
	primary.Err = nil
	primary.Clip = clip("cloud-audio")
	clock = clock.Add(31 * time.Second)
	if err := say(); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if primary.CallCount() != 3 {
		t.Fatalf("primary called %d times, want 3 (probe after reset)", primary.CallCount())
	}
}
