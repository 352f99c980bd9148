// Package store persists users, conversations, messages and usage logs for
// the chat server. The canonical implementation is PostgreSQL ([Postgres]);
// [Memory] backs handler tests and credential-free local runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or belongs
// to a different user.
var ErrNotFound = errors.New("store: not found")

// ErrEmailTaken is returned by CreateUser when the email is already
// registered.
var ErrEmailTaken = errors.New("store: email already exists")

// User is a registered account. HashedPassword never leaves the server.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"-"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation. Token counts are only set on
// assistant messages.
type Message struct {
	ID               int64     `json:"id"`
	ConversationID   int64     `json:"-"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageLog records the token usage and estimated cost of one LLM call.
type UsageLog struct {
	ID               int64
	UserID           int64
	ConversationID   int64
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
	CreatedAt        time.Time
}

// UsageSummary aggregates a user's usage logs.
type UsageSummary struct {
	TotalPromptTokens     int     `json:"total_prompt_tokens"`
	TotalCompletionTokens int     `json:"total_completion_tokens"`
	TotalTokens           int     `json:"total_tokens"`
	TotalEstimatedCostUSD float64 `json:"total_estimated_cost_usd"`
}

// Store is the persistence interface the HTTP handlers depend on. All lookup
// methods scope records to the owning user and return [ErrNotFound] on a
// miss.
type Store interface {
	CreateUser(ctx context.Context, email, fullName, hashedPassword string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)

	CreateConversation(ctx context.Context, userID int64, title, model, systemPrompt string) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]Conversation, error)
	Conversation(ctx context.Context, id, userID int64) (*Conversation, error)
	RenameConversation(ctx context.Context, id, userID int64, title string) (*Conversation, error)
	DeleteConversation(ctx context.Context, id, userID int64) error
	// UpdateConversationSettings sets the conversation's model and, when
	// systemPrompt is non-empty, its system prompt.
	UpdateConversationSettings(ctx context.Context, id, userID int64, model, systemPrompt string) error

	AddMessage(ctx context.Context, msg *Message) (*Message, error)
	// Messages returns all messages of a conversation, oldest first.
	Messages(ctx context.Context, conversationID int64) ([]Message, error)
	// RecentMessages returns the newest limit messages, reordered oldest
	// first, for building LLM context windows.
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)

	AddUsage(ctx context.Context, usage *UsageLog) error
	UsageSummary(ctx context.Context, userID int64) (*UsageSummary, error)

	Ping(ctx context.Context) error
	Close()
}
