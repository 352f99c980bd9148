package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/novabot/nova/internal/auth"
	"github.com/novabot/nova/internal/store"
	"github.com/novabot/nova/pkg/provider/llm"
	llmmock "github.com/novabot/nova/pkg/provider/llm/mock"
)

type testEnv struct {
	t      *testing.T
	ts     *httptest.Server
	srv    *Server
	store  *store.Memory
	openai *llmmock.Provider
	gemini *llmmock.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mgr, err := auth.NewManager("test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	mem := store.NewMemory()
	openai := &llmmock.Provider{
		Tokens: []string{"Hello", " world"},
		Usage:  llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	gemini := &llmmock.Provider{
		Tokens: []string{"Gemini", " reply"},
		Usage:  llm.Usage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12},
	}

	srv, err := New(Config{
		Store:   mem,
		Auth:    mgr,
		Gateway: NewGateway(openai, gemini, ""),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{t: t, ts: ts, srv: srv, store: mem, openai: openai, gemini: gemini}
}

func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return out
}

// signup registers a fresh user and returns its access token.
func (e *testEnv) signup(email string) string {
	e.t.Helper()

	resp := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":     email,
		"password":  "password123",
		"full_name": "Test User",
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("signup status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("login status = %d", resp.StatusCode)
	}
	pair := decodeBody[map[string]string](e.t, resp)
	if pair["access_token"] == "" {
		e.t.Fatal("login returned empty access token")
	}
	return pair["access_token"]
}

// newConversation creates a conversation and returns its id.
func (e *testEnv) newConversation(token string, body map[string]any) int64 {
	e.t.Helper()

	resp := e.do(http.MethodPost, "/api/chat/new", token, body)
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("chat/new status = %d", resp.StatusCode)
	}
	conv := decodeBody[map[string]any](e.t, resp)
	id, ok := conv["id"].(float64)
	if !ok || id == 0 {
		e.t.Fatalf("conversation id missing: %v", conv)
	}
	return int64(id)
}

func TestSignupLoginMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")

	resp := env.do(http.MethodGet, "/api/users/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	me := decodeBody[map[string]any](t, resp)
	if me["email"] != "alice@example.com" {
		t.Errorf("email = %v", me["email"])
	}
	if me["full_name"] != "Test User" {
		t.Errorf("full_name = %v", me["full_name"])
	}
	if _, leaked := me["hashed_password"]; leaked {
		t.Error("hashed password must not appear in the response")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signup("alice@example.com")

	resp := env.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["message"] != "Email already exists" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestSignupRejectsWeakInput(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "not-an-email", "password": "password123",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad email status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "bob@example.com", "password": "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short password status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signup("alice@example.com")

	for _, creds := range []map[string]string{
		{"email": "alice@example.com", "password": "wrong-password"},
		{"email": "nobody@example.com", "password": "password123"},
	} {
		resp := env.do(http.MethodPost, "/api/auth/login", "", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
		body := decodeBody[map[string]any](t, resp)
		if body["message"] != "Invalid credentials" {
			t.Errorf("message = %v", body["message"])
		}
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t)
	env.signup("alice@example.com")

	resp := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	pair := decodeBody[map[string]string](t, resp)

	resp = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": pair["refresh_token"],
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	fresh := decodeBody[map[string]string](t, resp)
	if fresh["access_token"] == "" || fresh["refresh_token"] == "" {
		t.Fatal("refresh returned empty tokens")
	}

	// An access token must not pass for a refresh token.
	resp = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": pair["access_token"],
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh with access token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/users/me"},
		{http.MethodGet, "/api/chat/list"},
		{http.MethodPost, "/api/chat/send"},
	} {
		resp := env.do(tc.method, tc.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tc.method, tc.path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := env.do(http.MethodGet, "/api/users/me", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateConversationDefaults(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")

	resp := env.do(http.MethodPost, "/api/chat/new", token, map[string]any{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	conv := decodeBody[map[string]any](t, resp)
	if conv["title"] != defaultTitle {
		t.Errorf("title = %v", conv["title"])
	}
	if conv["model"] != DefaultModel {
		t.Errorf("model = %v", conv["model"])
	}
	if conv["system_prompt"] != defaultSystemPrompt {
		t.Errorf("system_prompt = %v", conv["system_prompt"])
	}
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")

	id := env.newConversation(token, map[string]any{"title": "Voice Session"})
	env.newConversation(token, map[string]any{"title": "Second"})

	resp := env.do(http.MethodGet, "/api/chat/list", token, nil)
	list := decodeBody[[]map[string]any](t, resp)
	if len(list) != 2 {
		t.Fatalf("list len = %d", len(list))
	}
	// Newest activity first.
	if list[0]["title"] != "Second" {
		t.Errorf("list[0].title = %v", list[0]["title"])
	}

	resp = env.do(http.MethodPatch, "/api/chat/1", token, map[string]string{"title": "Renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status = %d", resp.StatusCode)
	}
	renamed := decodeBody[map[string]any](t, resp)
	if renamed["title"] != "Renamed" {
		t.Errorf("title = %v", renamed["title"])
	}

	resp = env.do(http.MethodDelete, "/api/chat/1", token, nil)
	ok := decodeBody[map[string]bool](t, resp)
	if !ok["ok"] {
		t.Error("delete should return ok=true")
	}

	resp = env.do(http.MethodGet, "/api/chat/history/1", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("history of deleted conversation status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
	_ = id
}

func TestConversationOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup("alice@example.com")
	mallory := env.signup("mallory@example.com")

	id := env.newConversation(alice, map[string]any{"title": "Private"})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/chat/history/1"},
		{http.MethodPatch, "/api/chat/1"},
		{http.MethodDelete, "/api/chat/1"},
	} {
		var body any
		if tc.method == http.MethodPatch {
			body = map[string]string{"title": "stolen"}
		}
		resp := env.do(tc.method, tc.path, mallory, body)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, resp.StatusCode)
		}
		resp.Body.Close()
	}
	_ = id
}

func TestSendPersistsTurn(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")
	id := env.newConversation(token, map[string]any{"system_prompt": "You are Nova."})

	resp := env.do(http.MethodPost, "/api/chat/send", token, map[string]any{
		"conversation_id": id,
		"message":         "What is the capital of France?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	out := decodeBody[map[string]map[string]any](t, resp)
	if out["user_message"]["content"] != "What is the capital of France?" {
		t.Errorf("user_message = %v", out["user_message"])
	}
	if out["assistant_message"]["content"] != "Hello world" {
		t.Errorf("assistant_message = %v", out["assistant_message"])
	}
	if got := out["assistant_message"]["total_tokens"].(float64); got != 15 {
		t.Errorf("total_tokens = %v", got)
	}

	// The provider saw the system prompt, no prior history, and the user text.
	if env.openai.RequestCount() != 1 {
		t.Fatalf("provider calls = %d", env.openai.RequestCount())
	}
	req := env.openai.Requests[0]
	if req.Model != DefaultModel {
		t.Errorf("model = %q", req.Model)
	}
	if req.Temperature != DefaultTemperature || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("defaults not applied: temp=%v max=%d", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}

	// History now holds both turns and feeds the next context window.
	resp = env.do(http.MethodGet, "/api/chat/history/1", token, nil)
	hist := decodeBody[map[string]json.RawMessage](t, resp)
	var msgs []map[string]any
	if err := json.Unmarshal(hist["messages"], &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history len = %d", len(msgs))
	}

	resp = env.do(http.MethodGet, "/api/users/usage/summary", token, nil)
	summary := decodeBody[map[string]float64](t, resp)
	if summary["total_tokens"] != 15 {
		t.Errorf("total_tokens = %v", summary["total_tokens"])
	}
	if summary["total_prompt_tokens"] != 10 || summary["total_completion_tokens"] != 5 {
		t.Errorf("summary = %v", summary)
	}
}

func TestSendRoutesGeminiModels(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")
	id := env.newConversation(token, nil)

	resp := env.do(http.MethodPost, "/api/chat/send", token, map[string]any{
		"conversation_id": id,
		"message":         "hi",
		"model":           "gemini-2.5-flash",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	out := decodeBody[map[string]map[string]any](t, resp)
	if out["assistant_message"]["content"] != "Gemini reply" {
		t.Errorf("assistant_message = %v", out["assistant_message"])
	}
	if env.gemini.RequestCount() != 1 || env.openai.RequestCount() != 0 {
		t.Errorf("calls: gemini=%d openai=%d", env.gemini.RequestCount(), env.openai.RequestCount())
	}

	// The conversation's model follows the explicit request.
	resp = env.do(http.MethodGet, "/api/chat/history/1", token, nil)
	hist := decodeBody[map[string]json.RawMessage](t, resp)
	var conv map[string]any
	if err := json.Unmarshal(hist["conversation"], &conv); err != nil {
		t.Fatalf("unmarshal conversation: %v", err)
	}
	if conv["model"] != "gemini-2.5-flash" {
		t.Errorf("conversation model = %v", conv["model"])
	}
}

func TestSendProviderErrorMapsTo502(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")
	id := env.newConversation(token, nil)

	env.openai.StartErr = errTest("insufficient_quota: account out of credits")

	resp := env.do(http.MethodPost, "/api/chat/send", token, map[string]any{
		"conversation_id": id,
		"message":         "hi",
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["message"] != "AI provider quota exceeded. Please check billing/credits." {
		t.Errorf("message = %v", body["message"])
	}

	// Failed turns leave no messages behind.
	resp = env.do(http.MethodGet, "/api/chat/history/1", token, nil)
	hist := decodeBody[map[string]json.RawMessage](t, resp)
	var msgs []map[string]any
	if err := json.Unmarshal(hist["messages"], &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("history len = %d, want 0", len(msgs))
	}
}

func TestSendUnknownConversation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")

	resp := env.do(http.MethodPost, "/api/chat/send", token, map[string]any{
		"conversation_id": 99,
		"message":         "hi",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendRateLimited(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")
	id := env.newConversation(token, nil)

	now := time.Unix(5000, 0)
	env.srv.limiter = NewRateLimiter(2, time.Minute)
	env.srv.limiter.now = func() time.Time { return now }

	body := map[string]any{"conversation_id": id, "message": "hi"}
	for i := 0; i < 2; i++ {
		resp := env.do(http.MethodPost, "/api/chat/send", token, body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("send %d status = %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := env.do(http.MethodPost, "/api/chat/send", token, body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	limited := decodeBody[map[string]any](t, resp)
	if limited["message"] != "Rate limit exceeded" {
		t.Errorf("message = %v", limited["message"])
	}

	now = now.Add(61 * time.Second)
	resp = env.do(http.MethodPost, "/api/chat/send", token, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after window = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendStream(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")
	id := env.newConversation(token, nil)

	resp := env.do(http.MethodPost, "/api/chat/send/stream", token, map[string]any{
		"conversation_id": id,
		"message":         "hi",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		`data: {"type":"token","value":"Hello"}`,
		`data: {"type":"token","value":" world"}`,
		`data: {"type":"done"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q in:\n%s", want, body)
		}
	}
	if strings.Index(body, `"done"`) < strings.Index(body, `"Hello"`) {
		t.Error("done event should come after tokens")
	}

	// Both turns and the usage log were committed before done.
	resp = env.do(http.MethodGet, "/api/chat/history/1", token, nil)
	hist := decodeBody[map[string]json.RawMessage](t, resp)
	var msgs []map[string]any
	if err := json.Unmarshal(hist["messages"], &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1]["content"] != "Hello world" {
		t.Fatalf("messages = %+v", msgs)
	}

	resp = env.do(http.MethodGet, "/api/users/usage/summary", token, nil)
	summary := decodeBody[map[string]float64](t, resp)
	if summary["total_tokens"] != 15 {
		t.Errorf("total_tokens = %v", summary["total_tokens"])
	}
}

func TestSendStreamProviderError(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup("alice@example.com")
	id := env.newConversation(token, nil)

	env.openai.StreamErr = errTest("upstream returned 503")

	resp := env.do(http.MethodPost, "/api/chat/send/stream", token, map[string]any{
		"conversation_id": id,
		"message":         "hi",
	})
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := string(raw)

	if !strings.Contains(body, `data: {"type":"error","value":"AI provider is temporarily unavailable. Please try again."}`) {
		t.Errorf("stream missing error event:\n%s", body)
	}
	if strings.Contains(body, `"done"`) {
		t.Error("no done event may follow an error")
	}

	// The user message survives the failed stream; the assistant one does not.
	resp = env.do(http.MethodGet, "/api/chat/history/1", token, nil)
	hist := decodeBody[map[string]json.RawMessage](t, resp)
	var msgs []map[string]any
	if err := json.Unmarshal(hist["messages"], &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0]["role"] != "user" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// errTest is a trivial error type so provider failures can carry exact text.
type errTest string

func (e errTest) Error() string { return string(e) }
