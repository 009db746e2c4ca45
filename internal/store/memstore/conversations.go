package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
)

// Conversations is the in-process implementation of store.Conversations.
type Conversations struct {
	mu        sync.RWMutex
	byID      map[string]domain.Conversation
	messages  map[string][]domain.Message // conversationID -> messages, append order
}

// NewConversations returns an empty Conversations store.
func NewConversations() *Conversations {
	return &Conversations{byID: make(map[string]domain.Conversation), messages: make(map[string][]domain.Message)}
}

func (s *Conversations) Init(ctx context.Context) error { return nil }

func (s *Conversations) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.LastMessageAt = c.CreatedAt
	s.byID[c.ID] = c
	return c, nil
}

func (s *Conversations) GetConversation(ctx context.Context, ownerID, id string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok || c.OwnerID != ownerID {
		return domain.Conversation{}, errs.NewOwnership("conversation", id)
	}
	return c, nil
}

func (s *Conversations) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[msg.ConversationID]
	if !ok {
		return domain.Message{}, errs.NewOwnership("conversation", msg.ConversationID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	c.LastMessageAt = msg.CreatedAt
	s.byID[msg.ConversationID] = c
	return msg, nil
}

func (s *Conversations) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if limit <= 0 || limit >= len(all) {
		out := make([]domain.Message, len(all))
		copy(out, all)
		return out, nil
	}
	start := len(all) - limit
	out := make([]domain.Message, limit)
	copy(out, all[start:])
	return out, nil
}
