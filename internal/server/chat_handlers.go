package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/novabot/nova/internal/cost"
	"github.com/novabot/nova/internal/store"
	"github.com/novabot/nova/pkg/provider/llm"
)

// Defaults applied when a conversation is created without explicit settings.
const (
	defaultTitle        = "New Chat"
	defaultSystemPrompt = "I am Nova Bot, your helpful AI assistant."
)

type createConversationRequest struct {
	Title        string `json:"title"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

type sendRequest struct {
	ConversationID int64    `json:"conversation_id"`
	Message        string   `json:"message"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      *int     `json:"max_tokens"`
	Model          string   `json:"model"`
	SystemPrompt   string   `json:"system_prompt"`
}

func (r *sendRequest) temperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return DefaultTemperature
}

func (r *sendRequest) maxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return DefaultMaxTokens
}

type sendResponse struct {
	UserMessage      *store.Message `json:"user_message"`
	AssistantMessage *store.Message `json:"assistant_message"`
}

type historyResponse struct {
	Conversation *store.Conversation `json:"conversation"`
	Messages     []store.Message     `json:"messages"`
}

func (s *Server) handleCreateChat(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Title == "" {
		req.Title = defaultTitle
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = defaultSystemPrompt
	}

	conv, err := s.store.CreateConversation(c.Request().Context(), currentUser(c).ID, req.Title, req.Model, req.SystemPrompt)
	if err != nil {
		s.log.Error("create conversation", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not create conversation")
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleListChats(c echo.Context) error {
	convs, err := s.store.ListConversations(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		s.log.Error("list conversations", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not list conversations")
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) handleRenameChat(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req renameConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Title must not be empty")
	}

	conv, err := s.store.RenameConversation(c.Request().Context(), id, currentUser(c).ID, req.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteChat(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(c.Request().Context(), id, currentUser(c).ID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleChatHistory(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	conv, err := s.store.Conversation(ctx, id, currentUser(c).ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
	}
	msgs, err := s.store.Messages(ctx, conv.ID)
	if err != nil {
		s.log.Error("load messages", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not load messages")
	}
	return c.JSON(http.StatusOK, historyResponse{Conversation: conv, Messages: msgs})
}

func (s *Server) handleSend(c echo.Context) error {
	req, conv, msgs, err := s.prepareSend(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	user := currentUser(c)

	provider, model, err := s.gateway.Resolve(requestedModel(req, conv))
	if err != nil {
		s.log.Warn("resolve model", "err", err)
		return echo.NewHTTPError(http.StatusBadGateway, llm.UserMessage(err))
	}

	started := time.Now()
	resp, err := provider.Chat(ctx, llm.Request{
		Model:       model,
		Messages:    msgs,
		Temperature: req.temperature(),
		MaxTokens:   req.maxTokens(),
	})
	s.metrics.RecordLLMDuration(ctx, model, time.Since(started).Seconds())
	if err != nil {
		s.log.Warn("chat completion failed", "model", model, "err", err)
		s.metrics.RecordChatSend(ctx, model, "buffered", "error")
		return echo.NewHTTPError(http.StatusBadGateway, llm.UserMessage(err))
	}
	s.metrics.RecordChatSend(ctx, model, "buffered", "ok")

	userMsg, err := s.store.AddMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
	})
	if err != nil {
		s.log.Error("persist user message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not save message")
	}
	assistantMsg, err := s.recordAssistantTurn(c, user.ID, conv.ID, model, req.SystemPrompt, resp.Content, resp.Usage)
	if err != nil {
		s.log.Error("persist assistant message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not save message")
	}

	return c.JSON(http.StatusOK, sendResponse{UserMessage: userMsg, AssistantMessage: assistantMsg})
}

func (s *Server) handleSendStream(c echo.Context) error {
	req, conv, msgs, err := s.prepareSend(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	user := currentUser(c)

	// The user message is committed before streaming begins so it survives a
	// mid-stream provider failure.
	if _, err := s.store.AddMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
	}); err != nil {
		s.log.Error("persist user message", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not save message")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	provider, model, err := s.gateway.Resolve(requestedModel(req, conv))
	if err != nil {
		s.log.Warn("resolve model", "err", err)
		writeSSE(w, streamEvent{Type: "error", Value: llm.UserMessage(err)})
		return nil
	}

	events, err := provider.ChatStream(ctx, llm.Request{
		Model:       model,
		Messages:    msgs,
		Temperature: req.temperature(),
		MaxTokens:   req.maxTokens(),
	})
	if err != nil {
		s.log.Warn("start stream", "model", model, "err", err)
		s.metrics.RecordChatSend(ctx, model, "stream", "error")
		writeSSE(w, streamEvent{Type: "error", Value: llm.UserMessage(err)})
		return nil
	}

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)
	started := time.Now()

	var full strings.Builder
	var usage llm.Usage
	for ev := range events {
		switch ev.Type {
		case llm.EventToken:
			if ev.Token == "" {
				continue
			}
			full.WriteString(ev.Token)
			writeSSE(w, streamEvent{Type: "token", Value: ev.Token})
		case llm.EventUsage:
			usage = ev.Usage
		case llm.EventError:
			s.log.Warn("stream failed", "model", model, "err", ev.Err)
			s.metrics.RecordChatSend(ctx, model, "stream", "error")
			writeSSE(w, streamEvent{Type: "error", Value: llm.UserMessage(ev.Err)})
			return nil
		case llm.EventDone:
			s.metrics.RecordLLMDuration(ctx, model, time.Since(started).Seconds())
			if _, err := s.recordAssistantTurn(c, user.ID, conv.ID, model, req.SystemPrompt, full.String(), usage); err != nil {
				s.log.Error("persist assistant message", "err", err)
				s.metrics.RecordChatSend(ctx, model, "stream", "error")
				writeSSE(w, streamEvent{Type: "error", Value: llm.UserMessage(err)})
				return nil
			}
			s.metrics.RecordChatSend(ctx, model, "stream", "ok")
			writeSSE(w, streamEvent{Type: "done"})
			return nil
		}
	}
	return nil
}

// recordAssistantTurn persists the assistant reply, logs its usage, and
// updates the conversation's model and optional system prompt.
func (s *Server) recordAssistantTurn(c echo.Context, userID, convID int64, model, systemPrompt, content string, usage llm.Usage) (*store.Message, error) {
	ctx := c.Request().Context()

	msg, err := s.store.AddMessage(ctx, &store.Message{
		ConversationID:   convID,
		Role:             "assistant",
		Content:          content,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.AddUsage(ctx, &store.UsageLog{
		UserID:           userID,
		ConversationID:   convID,
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		EstimatedCostUSD: cost.Estimate(model, usage.TotalTokens),
	}); err != nil {
		return nil, err
	}

	if err := s.store.UpdateConversationSettings(ctx, convID, userID, model, systemPrompt); err != nil {
		return nil, err
	}
	return msg, nil
}

// prepareSend runs the shared front half of both send handlers: rate
// limiting, request validation, conversation ownership, and LLM context
// assembly.
func (s *Server) prepareSend(c echo.Context) (*sendRequest, *store.Conversation, []llm.Message, error) {
	user := currentUser(c)
	if !s.limiter.Allow(user.ID) {
		return nil, nil, nil, echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
	}

	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, nil, nil, echo.NewHTTPError(http.StatusBadRequest, "Message must not be empty")
	}

	ctx := c.Request().Context()
	conv, err := s.store.Conversation(ctx, req.ConversationID, user.ID)
	if err != nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
	}
	history, err := s.store.RecentMessages(ctx, conv.ID, contextWindow)
	if err != nil {
		s.log.Error("load history", "err", err)
		return nil, nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Could not load history")
	}
	return &req, conv, buildContext(conv.SystemPrompt, history, req.Message), nil
}

func requestedModel(req *sendRequest, conv *store.Conversation) string {
	if req.Model != "" {
		return req.Model
	}
	return conv.Model
}

func conversationID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation id")
	}
	return id, nil
}

// streamEvent is the SSE payload shape: {"type":"token","value":"..."},
// {"type":"error","value":"..."}, or {"type":"done"}.
type streamEvent struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

func writeSSE(w *echo.Response, ev streamEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	w.Flush()
}
