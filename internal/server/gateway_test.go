package server

import (
	"strings"
	"testing"

	"github.com/novabot/nova/internal/store"
	"github.com/novabot/nova/pkg/provider/llm"
	llmmock "github.com/novabot/nova/pkg/provider/llm/mock"
)

func TestGatewayResolveRoutesByModelFamily(t *testing.T) {
	openai := &llmmock.Provider{}
	gemini := &llmmock.Provider{}
	g := NewGateway(openai, gemini, "")

	p, model, err := g.Resolve("gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Resolve gemini: %v", err)
	}
	if p != llm.Provider(gemini) {
		t.Error("gemini model should route to the gemini provider")
	}
	if model != "gemini-2.5-flash" {
		t.Errorf("model = %q", model)
	}

	p, model, err = g.Resolve("gpt-4o")
	if err != nil {
		t.Fatalf("Resolve gpt-4o: %v", err)
	}
	if p != llm.Provider(openai) {
		t.Error("gpt model should route to the openai provider")
	}
	if model != "gpt-4o" {
		t.Errorf("model = %q", model)
	}
}

func TestGatewayResolveEmptyModelUsesDefault(t *testing.T) {
	openai := &llmmock.Provider{}
	g := NewGateway(openai, nil, "")

	_, model, err := g.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if model != DefaultModel {
		t.Errorf("model = %q, want %q", model, DefaultModel)
	}

	g = NewGateway(openai, nil, "gpt-4o")
	_, model, err = g.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", model)
	}
}

func TestGatewayResolveMissingProvider(t *testing.T) {
	g := NewGateway(&llmmock.Provider{}, nil, "")

	_, _, err := g.Resolve("gemini-2.5-flash")
	if err == nil {
		t.Fatal("expected error for unconfigured gemini provider")
	}
	if got := llm.UserMessage(err); got != "Server AI configuration is missing. Please contact support." {
		t.Errorf("UserMessage = %q", got)
	}

	g = NewGateway(nil, &llmmock.Provider{}, "")
	if _, _, err := g.Resolve("gpt-4o-mini"); err == nil {
		t.Fatal("expected error for unconfigured openai provider")
	}
}

func TestBuildContext(t *testing.T) {
	history := []store.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	msgs := buildContext("You are Nova.", history, "how are you?")

	want := []llm.Message{
		{Role: "system", Content: "You are Nova."},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you?"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("len = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msgs[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestBuildContextSkipsEmptySystemPrompt(t *testing.T) {
	msgs := buildContext("", nil, "ping")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("msgs = %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "ping") {
		t.Errorf("content = %q", msgs[0].Content)
	}
}
