package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Store = (*Postgres)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              BIGSERIAL    PRIMARY KEY,
    email           TEXT         NOT NULL UNIQUE,
    full_name       TEXT         NOT NULL DEFAULT '',
    hashed_password TEXT         NOT NULL,
    is_active       BOOLEAN      NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
    id            BIGSERIAL    PRIMARY KEY,
    user_id       BIGINT       NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    title         TEXT         NOT NULL DEFAULT 'New Chat',
    model         TEXT         NOT NULL DEFAULT 'gpt-4o-mini',
    system_prompt TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_id
    ON conversations (user_id);

CREATE TABLE IF NOT EXISTS messages (
    id                BIGSERIAL    PRIMARY KEY,
    conversation_id   BIGINT       NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
    role              TEXT         NOT NULL,
    content           TEXT         NOT NULL,
    prompt_tokens     INTEGER      NOT NULL DEFAULT 0,
    completion_tokens INTEGER      NOT NULL DEFAULT 0,
    total_tokens      INTEGER      NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS usage_logs (
    id                 BIGSERIAL      PRIMARY KEY,
    user_id            BIGINT         NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    conversation_id    BIGINT         REFERENCES conversations (id) ON DELETE SET NULL,
    model              TEXT           NOT NULL,
    prompt_tokens      INTEGER        NOT NULL DEFAULT 0,
    completion_tokens  INTEGER        NOT NULL DEFAULT 0,
    total_tokens       INTEGER        NOT NULL DEFAULT 0,
    estimated_cost_usd NUMERIC(12,4)  NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ    NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_user_id
    ON usage_logs (user_id);
`

// Postgres is the PostgreSQL-backed [Store]. All operations are safe for
// concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn, pings it, and runs the schema
// migration.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) CreateUser(ctx context.Context, email, fullName, hashedPassword string) (*User, error) {
	const q = `
		INSERT INTO users (email, full_name, hashed_password)
		VALUES ($1, $2, $3)
		RETURNING id, email, full_name, hashed_password, is_active, created_at`

	u, err := scanUser(p.pool.QueryRow(ctx, q, email, fullName, hashedPassword))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT id, email, full_name, hashed_password, is_active, created_at
		FROM   users WHERE email = $1`
	return p.user(ctx, q, email)
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `
		SELECT id, email, full_name, hashed_password, is_active, created_at
		FROM   users WHERE id = $1`
	return p.user(ctx, q, id)
}

func (p *Postgres) user(ctx context.Context, q string, arg any) (*User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, userID int64, title, model, systemPrompt string) (*Conversation, error) {
	const q = `
		INSERT INTO conversations (user_id, title, model, system_prompt)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, title, model, system_prompt, created_at, updated_at`

	c, err := scanConversation(p.pool.QueryRow(ctx, q, userID, title, model, systemPrompt))
	if err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	const q = `
		SELECT id, user_id, title, model, system_prompt, created_at, updated_at
		FROM   conversations
		WHERE  user_id = $1
		ORDER  BY updated_at DESC`

	rows, err := p.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	convs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Conversation, error) {
		c, err := scanConversation(row)
		if err != nil {
			return Conversation{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return convs, nil
}

func (p *Postgres) Conversation(ctx context.Context, id, userID int64) (*Conversation, error) {
	const q = `
		SELECT id, user_id, title, model, system_prompt, created_at, updated_at
		FROM   conversations
		WHERE  id = $1 AND user_id = $2`

	c, err := scanConversation(p.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) RenameConversation(ctx context.Context, id, userID int64, title string) (*Conversation, error) {
	const q = `
		UPDATE conversations
		SET    title = $3, updated_at = now()
		WHERE  id = $1 AND user_id = $2
		RETURNING id, user_id, title, model, system_prompt, created_at, updated_at`

	c, err := scanConversation(p.pool.QueryRow(ctx, q, id, userID, title))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: rename conversation: %w", err)
	}
	return c, nil
}

func (p *Postgres) DeleteConversation(ctx context.Context, id, userID int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateConversationSettings(ctx context.Context, id, userID int64, model, systemPrompt string) error {
	const q = `
		UPDATE conversations
		SET    model = $3,
		       system_prompt = CASE WHEN $4 = '' THEN system_prompt ELSE $4 END,
		       updated_at = now()
		WHERE  id = $1 AND user_id = $2`

	tag, err := p.pool.Exec(ctx, q, id, userID, model, systemPrompt)
	if err != nil {
		return fmt.Errorf("store: update conversation settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.SystemPrompt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) AddMessage(ctx context.Context, msg *Message) (*Message, error) {
	const q = `
		INSERT INTO messages
		    (conversation_id, role, content, prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	out := *msg
	err := p.pool.QueryRow(ctx, q,
		msg.ConversationID, msg.Role, msg.Content,
		msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: add message: %w", err)
	}
	return &out, nil
}

func (p *Postgres) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, prompt_tokens, completion_tokens, total_tokens, created_at
		FROM   messages
		WHERE  conversation_id = $1
		ORDER  BY created_at ASC, id ASC`

	return p.collectMessages(ctx, q, conversationID)
}

func (p *Postgres) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, prompt_tokens, completion_tokens, total_tokens, created_at
		FROM (
		    SELECT *
		    FROM   messages
		    WHERE  conversation_id = $1
		    ORDER  BY created_at DESC, id DESC
		    LIMIT  $2
		) recent
		ORDER BY created_at ASC, id ASC`

	return p.collectMessages(ctx, q, conversationID, limit)
}

func (p *Postgres) collectMessages(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: load messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&m.PromptTokens, &m.CompletionTokens, &m.TotalTokens, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: load messages: %w", err)
	}
	return msgs, nil
}

func (p *Postgres) AddUsage(ctx context.Context, usage *UsageLog) error {
	const q = `
		INSERT INTO usage_logs
		    (user_id, conversation_id, model, prompt_tokens, completion_tokens, total_tokens, estimated_cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.pool.Exec(ctx, q,
		usage.UserID, usage.ConversationID, usage.Model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
		usage.EstimatedCostUSD,
	)
	if err != nil {
		return fmt.Errorf("store: add usage: %w", err)
	}
	return nil
}

func (p *Postgres) UsageSummary(ctx context.Context, userID int64) (*UsageSummary, error) {
	const q = `
		SELECT COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(estimated_cost_usd), 0)
		FROM   usage_logs
		WHERE  user_id = $1`

	var s UsageSummary
	err := p.pool.QueryRow(ctx, q, userID).Scan(
		&s.TotalPromptTokens,
		&s.TotalCompletionTokens,
		&s.TotalTokens,
		&s.TotalEstimatedCostUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("store: usage summary: %w", err)
	}
	return &s, nil
}
