// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, Gemini, or
// a local Ollama instance) and exposes a uniform interface for completions
// without coupling callers to any specific SDK. Streaming output uses an
// explicit tagged-union event type ([StreamEvent]) so that consumers handle
// tokens, usage accounting, and stream termination through a single channel.
//
// Implementors must be safe for concurrent use. Channels returned by
// ChatStream must be closed by the implementation after the terminal event.
package llm

import "context"

// Request carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type Request struct {
	// Model selects the model to run (e.g., "gpt-4o-mini", "gemini-2.5-flash").
	// Empty uses the provider's configured default.
	Model string

	// Messages is the ordered conversation history, including any "system"
	// role message. The last message is typically from the "user" role and
	// drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// Response is returned by the non-streaming Chat method.
type Response struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as
// possible.
type Provider interface {
	// ChatStream sends req to the model and returns a read-only channel that
	// emits StreamEvent values as they arrive: EventToken per text fragment,
	// at most one EventUsage, then exactly one terminal EventDone or
	// EventError. The channel is closed after the terminal event.
	//
	// Callers must drain the channel to avoid goroutine leaks. The initial
	// error return is non-nil only for failures that prevent the stream from
	// starting (e.g., invalid credentials, malformed request). The returned
	// channel must never be nil when error is nil.
	ChatStream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// Chat sends req to the model and waits for the full response. It is a
	// convenience for callers that do not need incremental output.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives.
	Chat(ctx context.Context, req Request) (*Response, error)

	// CountTokens estimates the number of tokens the given message list would
	// consume in the model's context window. Implementations may call the
	// provider's tokenisation API or perform a local approximation. The
	// result need not be exact but should not undercount.
	CountTokens(messages []Message) (int, error)
}
