// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/novabot/nova/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
//
// By default ChatStream emits one EventToken per element of Tokens, then an
// EventUsage with Usage, then EventDone. Setting StreamErr makes the stream
// end with a terminal EventError instead; setting StartErr makes ChatStream
// fail before a channel is returned.
type Provider struct {
	mu sync.Mutex

	// Tokens are emitted in order as EventToken events.
	Tokens []string

	// Usage is emitted as the EventUsage payload.
	Usage llm.Usage

	// StreamErr, if non-nil, replaces the usage/done tail with EventError.
	StreamErr error

	// StartErr, if non-nil, is returned directly by ChatStream and Chat.
	StartErr error

	// Requests records every request passed to ChatStream or Chat.
	Requests []llm.Request
}

// ChatStream implements llm.Provider.
func (p *Provider) ChatStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	tokens := p.Tokens
	usage := p.Usage
	streamErr := p.StreamErr
	startErr := p.StartErr
	p.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	ch := make(chan llm.StreamEvent, len(tokens)+2)
	go func() {
		defer close(ch)
		for _, tok := range tokens {
			select {
			case ch <- llm.StreamEvent{Type: llm.EventToken, Token: tok}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			ch <- llm.StreamEvent{Type: llm.EventError, Err: streamErr}
			return
		}
		ch <- llm.StreamEvent{Type: llm.EventUsage, Usage: usage}
		ch <- llm.StreamEvent{Type: llm.EventDone}
	}()
	return ch, nil
}

// Chat implements llm.Provider by joining Tokens into a single response.
func (p *Provider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	tokens := p.Tokens
	usage := p.Usage
	startErr := p.StartErr
	streamErr := p.StreamErr
	p.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}
	if streamErr != nil {
		return nil, streamErr
	}

	content := ""
	for _, tok := range tokens {
		content += tok
	}
	return &llm.Response{Content: content, Usage: usage}, nil
}

// CountTokens implements llm.Provider with a character-length approximation.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
	}
	return total, nil
}

// RequestCount returns the number of recorded requests. Thread-safe.
func (p *Provider) RequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
