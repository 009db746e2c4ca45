package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
)

// Conversations is the Postgres-backed implementation of store.Conversations.
type Conversations struct {
	pool *pgxpool.Pool
}

// NewConversations returns a Conversations repository bound to pool.
func NewConversations(pool *pgxpool.Pool) *Conversations {
	return &Conversations{pool: pool}
}

func (s *Conversations) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS conversations_owner_idx ON conversations(owner_id, last_message_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    citations JSONB NOT NULL DEFAULT '[]',
    interrupted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages(conversation_id, created_at);
`)
	return err
}

func (s *Conversations) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO conversations (id, owner_id, title)
VALUES ($1, $2, $3)
RETURNING id, owner_id, title, created_at, last_message_at`, c.ID, c.OwnerID, c.Title)
	return scanConversation(row)
}

func (s *Conversations) GetConversation(ctx context.Context, ownerID, id string) (domain.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, owner_id, title, created_at, last_message_at FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Conversation{}, errs.NewOwnership("conversation", id)
		}
		return domain.Conversation{}, err
	}
	if c.OwnerID != ownerID {
		return domain.Conversation{}, errs.NewOwnership("conversation", id)
	}
	return c, nil
}

func (s *Conversations) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	citationsJSON, err := marshalCitations(msg.Citations)
	if err != nil {
		return domain.Message{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
INSERT INTO messages (id, conversation_id, role, content, citations, interrupted)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, conversation_id, role, content, citations, interrupted, created_at`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, citationsJSON, msg.Interrupted)
	out, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, err
	}

	if _, err := tx.Exec(ctx, `
UPDATE conversations SET last_message_at = $2 WHERE id = $1`, msg.ConversationID, out.CreatedAt); err != nil {
		return domain.Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, err
	}
	return out, nil
}

func (s *Conversations) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `
SELECT id, conversation_id, role, content, citations, interrupted, created_at
FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `
SELECT id, conversation_id, role, content, citations, interrupted, created_at FROM (
    SELECT id, conversation_id, role, content, citations, interrupted, created_at
    FROM messages WHERE conversation_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2
) sub ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.LastMessageAt); err != nil {
		return domain.Conversation{}, err
	}
	return c, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	var role string
	var citationsJSON []byte
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &citationsJSON, &m.Interrupted, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	m.Role = domain.MessageRole(role)
	citations, err := unmarshalCitations(citationsJSON)
	if err != nil {
		return domain.Message{}, err
	}
	m.Citations = citations
	return m, nil
}
