// Package command routes recognized utterances to local actions. Routing is
// pure string matching; the side effects (opening a browser, launching an
// editor, reading the clock) are injected so the router can be tested without
// touching the host system.
package command

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Result is the outcome of routing one utterance. Value type, produced fresh
// per invocation.
type Result struct {
	// Executed reports whether the utterance matched a local command. When
	// false, the utterance should be forwarded to the assistant backend.
	Executed bool

	// Response is the text to speak back to the user. May be empty.
	Response string

	// ShouldExit is set when the utterance asked the assistant to stop.
	ShouldExit bool
}

// Router matches utterances against the built-in local commands.
type Router struct {
	openURL   func(url string) error
	openNotes func() error
	now       func() time.Time
}

// Option configures a [Router].
type Option func(*Router)

// WithOpenURL replaces the browser launcher.
func WithOpenURL(fn func(url string) error) Option {
	return func(r *Router) { r.openURL = fn }
}

// WithOpenNotes replaces the text editor launcher.
func WithOpenNotes(fn func() error) Option {
	return func(r *Router) { r.openNotes = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a [Router] with host defaults for all side effects.
func New(opts ...Option) *Router {
	r := &Router{
		openURL:   openBrowser,
		openNotes: openEditor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route matches text against the local commands. Matching is case-insensitive;
// launch failures are logged but never spoken, so the user still hears the
// normal confirmation.
func (r *Router) Route(text string) Result {
	cmd := strings.ToLower(strings.TrimSpace(text))
	if cmd == "" {
		return Result{}
	}

	switch {
	case strings.Contains(cmd, "open youtube"):
		return r.open("https://youtube.com", "Opening YouTube.")

	case strings.Contains(cmd, "open google"):
		return r.open("https://google.com", "Opening Google.")

	case strings.Contains(cmd, "open notepad"):
		if err := r.openNotes(); err != nil {
			slog.Warn("could not launch editor", "error", err)
		}
		return Result{Executed: true, Response: "Opening notepad."}

	case strings.Contains(cmd, "what time is it") || cmd == "time":
		return Result{
			Executed: true,
			Response: fmt.Sprintf("It is %s.", r.now().Format("03:04 PM")),
		}

	case cmd == "exit" || cmd == "quit" || cmd == "stop assistant":
		return Result{Executed: true, Response: "Stopping voice assistant.", ShouldExit: true}

	default:
		return Result{}
	}
}

func (r *Router) open(url, response string) Result {
	if err := r.openURL(url); err != nil {
		slog.Warn("could not open browser", "url", url, "error", err)
	}
	return Result{Executed: true, Response: response}
}

// openBrowser opens url in the default browser of the host platform.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// openEditor launches a plain text editor, trying a platform-specific chain
// of candidates until one starts.
func openEditor() error {
	var candidates [][]string
	if runtime.GOOS == "windows" {
		candidates = [][]string{{"notepad"}}
	} else {
		candidates = [][]string{
			{"gedit"},
			{"xdg-open", "."},
			{"open", "-a", "TextEdit"},
		}
	}

	var lastErr error
	for _, c := range candidates {
		if err := exec.Command(c[0], c[1:]...).Start(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("command: no editor available: %w", lastErr)
}
