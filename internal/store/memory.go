package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// Memory is an in-memory [Store] for handler tests and credential-free local
// runs. Safe for concurrent use.
type Memory struct {
	mu sync.Mutex

	nextUserID    int64
	nextConvID    int64
	nextMessageID int64
	nextUsageID   int64

	users         map[int64]*User
	conversations map[int64]*Conversation
	messages      map[int64][]Message // keyed by conversation ID
	usage         []UsageLog

	now func() time.Time
}

// NewMemory creates an empty [Memory] store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[int64]*User),
		conversations: make(map[int64]*Conversation),
		messages:      make(map[int64][]Message),
		now:           time.Now,
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) CreateUser(_ context.Context, email, fullName, hashedPassword string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}
	m.nextUserID++
	u := &User{
		ID:             m.nextUserID,
		Email:          email,
		FullName:       fullName,
		HashedPassword: hashedPassword,
		IsActive:       true,
		CreatedAt:      m.now(),
	}
	m.users[u.ID] = u
	out := *u
	return &out, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UserByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) CreateConversation(_ context.Context, userID int64, title, model, systemPrompt string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextConvID++
	now := m.now()
	c := &Conversation{
		ID:           m.nextConvID,
		UserID:       userID,
		Title:        title,
		Model:        model,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.conversations[c.ID] = c
	out := *c
	return &out, nil
}

func (m *Memory) ListConversations(_ context.Context, userID int64) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) Conversation(_ context.Context, id, userID int64) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.conversationLocked(id, userID)
	if err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

func (m *Memory) conversationLocked(id, userID int64) (*Conversation, error) {
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Memory) RenameConversation(_ context.Context, id, userID int64, title string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.conversationLocked(id, userID)
	if err != nil {
		return nil, err
	}
	c.Title = title
	c.UpdatedAt = m.now()
	out := *c
	return &out, nil
}

func (m *Memory) DeleteConversation(_ context.Context, id, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.conversationLocked(id, userID); err != nil {
		return err
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) UpdateConversationSettings(_ context.Context, id, userID int64, model, systemPrompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.conversationLocked(id, userID)
	if err != nil {
		return err
	}
	c.Model = model
	if systemPrompt != "" {
		c.SystemPrompt = systemPrompt
	}
	c.UpdatedAt = m.now()
	return nil
}

func (m *Memory) AddMessage(_ context.Context, msg *Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextMessageID++
	out := *msg
	out.ID = m.nextMessageID
	out.CreatedAt = m.now()
	m.messages[out.ConversationID] = append(m.messages[out.ConversationID], out)
	return &out, nil
}

func (m *Memory) Messages(_ context.Context, conversationID int64) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Message(nil), m.messages[conversationID]...), nil
}

func (m *Memory) RecentMessages(_ context.Context, conversationID int64, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

func (m *Memory) AddUsage(_ context.Context, usage *UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextUsageID++
	u := *usage
	u.ID = m.nextUsageID
	u.CreatedAt = m.now()
	m.usage = append(m.usage, u)
	return nil
}

func (m *Memory) UsageSummary(_ context.Context, userID int64) (*UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s UsageSummary
	for _, u := range m.usage {
		if u.UserID != userID {
			continue
		}
		s.TotalPromptTokens += u.PromptTokens
		s.TotalCompletionTokens += u.CompletionTokens
		s.TotalTokens += u.TotalTokens
		s.TotalEstimatedCostUSD += u.EstimatedCostUSD
	}
	return &s, nil
}
