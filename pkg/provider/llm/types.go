package llm

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt. This value directly affects billing.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a
	// convenience; some providers return it directly rather than computing it
	// from the parts.
	TotalTokens int

	// Estimated is true when the provider did not report usage and the counts
	// were approximated from text length.
	Estimated bool
}

// EventType discriminates the variants of a StreamEvent.
type EventType int

const (
	// EventToken carries an incremental text fragment in StreamEvent.Token.
	EventToken EventType = iota

	// EventUsage carries token accounting in StreamEvent.Usage. Emitted at
	// most once, before the terminal event.
	EventUsage

	// EventDone signals successful end of stream. Terminal.
	EventDone

	// EventError signals the stream failed; StreamEvent.Err holds the cause.
	// Terminal.
	EventError
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventToken:
		return "token"
	case EventUsage:
		return "usage"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is one element of a streaming completion. Exactly one variant is
// populated, selected by Type. A stream consists of zero or more EventToken
// events, at most one EventUsage event, and exactly one terminal event
// (EventDone or EventError), after which the channel is closed.
type StreamEvent struct {
	Type  EventType
	Token string
	Usage Usage
	Err   error
}
