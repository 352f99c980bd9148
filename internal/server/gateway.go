package server

import (
	"fmt"
	"strings"

	"github.com/novabot/nova/internal/store"
	"github.com/novabot/nova/pkg/provider/llm"
)

// Generation defaults applied when a chat request leaves the corresponding
// field unset.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 700
)

// contextWindow is the number of stored messages included in the LLM context
// ahead of the new user message.
const contextWindow = 12

// Gateway routes a chat request to the LLM provider serving the requested
// model family. Models named "gemini*" go to the Gemini provider; everything
// else goes to the OpenAI-compatible provider.
type Gateway struct {
	openai       llm.Provider
	gemini       llm.Provider
	defaultModel string
}

// NewGateway creates a Gateway over the given providers. Either provider may
// be nil when the deployment has no credentials for it; requests routed to a
// nil provider fail with a configuration error. An empty defaultModel falls
// back to [DefaultModel].
func NewGateway(openai, gemini llm.Provider, defaultModel string) *Gateway {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	return &Gateway{openai: openai, gemini: gemini, defaultModel: defaultModel}
}

// Resolve returns the provider and effective model name for the requested
// model. An empty model selects the gateway default.
func (g *Gateway) Resolve(model string) (llm.Provider, string, error) {
	if model == "" {
		model = g.defaultModel
	}
	if strings.HasPrefix(model, "gemini") {
		if g.gemini == nil {
			return nil, "", fmt.Errorf("gateway: GEMINI_API_KEY is missing, cannot serve model %q", model)
		}
		return g.gemini, model, nil
	}
	if g.openai == nil {
		return nil, "", fmt.Errorf("gateway: OPENAI_API_KEY is missing, cannot serve model %q", model)
	}
	return g.openai, model, nil
}

// buildContext assembles the message window sent to the LLM: the
// conversation's system prompt, the stored history (oldest first), and the
// new user message.
func buildContext(systemPrompt string, history []store.Message, userText string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: "user", Content: userText})
}
