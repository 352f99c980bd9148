// Package assistant implements the top-level voice assistant loop: it reads
// final transcripts, gates them on the wake phrase, routes local commands,
// and forwards everything else to the chat backend, speaking the replies.
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/novabot/nova/internal/command"
	"github.com/novabot/nova/pkg/provider/stt"
)

// Defaults for the controller configuration.
const (
	DefaultWakePhrase = "hey nova"

	// GeminiModel and OpenAIModel are the targets of the spoken
	// model-switch commands. GeminiModel is also the startup default.
	GeminiModel = "gemini-2.5-flash"
	OpenAIModel = "gpt-4o-mini"

	DefaultModel = GeminiModel
)

const listeningAck = "Yes, I am listening."

// Speaker is the voice output the controller talks through.
type Speaker interface {
	// Speak enqueues text for synthesis.
	Speak(text string) error
	// Interrupt truncates the utterance currently playing.
	Interrupt()
}

// Asker sends a user message to the chat backend and returns the reply.
type Asker interface {
	Ask(ctx context.Context, message, model string, onToken func(string)) (string, error)
}

// Config configures a [Controller].
type Config struct {
	// WakePhrase gates utterances; anything not containing it is ignored.
	// Defaults to "hey nova".
	WakePhrase string

	// Model is the initial backend model. Defaults to gemini-2.5-flash.
	Model string
}

// Controller runs the assistant conversation loop. Create with [New], drive
// with [Controller.Run].
type Controller struct {
	transcripts <-chan stt.Transcript
	router      *command.Router
	speaker     Speaker
	backend     Asker

	wakePhrase string

	mu    sync.Mutex
	model string

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New creates a [Controller].
func New(transcripts <-chan stt.Transcript, router *command.Router, speaker Speaker, backend Asker, cfg Config) *Controller {
	if cfg.WakePhrase == "" {
		cfg.WakePhrase = DefaultWakePhrase
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Controller{
		transcripts: transcripts,
		router:      router,
		speaker:     speaker,
		backend:     backend,
		wakePhrase:  strings.ToLower(cfg.WakePhrase),
		model:       cfg.Model,
		shutdown:    make(chan struct{}),
	}
}

// Model returns the backend model currently in use.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Shutdown asks the run loop to exit. Safe to call multiple times and from
// any goroutine.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})
}

// Run processes transcripts until the context is cancelled, the transcript
// source closes, or the user asks the assistant to exit.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("listening for wake phrase", "wake_phrase", c.wakePhrase)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.shutdown:
			return nil
		case t, ok := <-c.transcripts:
			if !ok {
				return nil
			}
			if c.handle(ctx, t.Text) {
				c.Shutdown()
				return nil
			}
		}
	}
}

// handle processes one transcript. It returns true when the assistant should
// shut down.
func (c *Controller) handle(ctx context.Context, text string) bool {
	utterance, awake := c.stripWakePhrase(text)
	if !awake {
		slog.Debug("ignoring utterance without wake phrase", "text", text)
		return false
	}

	if utterance == "" {
		c.speak(listeningAck)
		return false
	}

	slog.Info("heard", "text", utterance)

	// The user has more to say; cut off anything still playing.
	c.speaker.Interrupt()

	if confirmation, switched := c.maybeSwitchModel(utterance); switched {
		c.speak(confirmation)
		return false
	}

	if res := c.router.Route(utterance); res.Executed {
		if res.Response != "" {
			c.speak(res.Response)
		}
		return res.ShouldExit
	}

	reply, err := c.backend.Ask(ctx, utterance, c.Model(), nil)
	if err != nil {
		slog.Error("backend request failed", "error", err)
		c.speak("Sorry, I could not get an answer for that.")
		return false
	}
	c.speak(reply)
	return false
}

// stripWakePhrase reports whether text contains the wake phrase and returns
// the normalized command that follows it.
func (c *Controller) stripWakePhrase(text string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	idx := strings.Index(lowered, c.wakePhrase)
	if idx < 0 {
		return "", false
	}
	rest := lowered[:idx] + lowered[idx+len(c.wakePhrase):]
	return strings.Trim(rest, " ,.!?"), true
}

// maybeSwitchModel handles the spoken model-switch commands.
func (c *Controller) maybeSwitchModel(utterance string) (string, bool) {
	switch {
	case strings.Contains(utterance, "switch to gemini"):
		c.setModel(GeminiModel)
		return "Switched model to Gemini 2.5 Flash.", true
	case strings.Contains(utterance, "switch to openai"):
		c.setModel(OpenAIModel)
		return "Switched model to OpenAI GPT 4o mini.", true
	default:
		return "", false
	}
}

func (c *Controller) setModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	slog.Info("model switched", "model", model)
}

func (c *Controller) speak(text string) {
	if err := c.speaker.Speak(text); err != nil {
		slog.Warn("could not enqueue speech", "error", err, "text", text)
	}
}
