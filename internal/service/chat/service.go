package chat

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
)

// MemoryStore keeps conversations in process memory. It is the default
// backend and the one tests run against.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	turns         map[string][]chat.Turn
	audit         []chat.AuditEntry
	now           func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]chat.Conversation),
		turns:         make(map[string][]chat.Turn),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation provisions a conversation owned by userID.
func (s *MemoryStore) CreateConversation(_ context.Context, userID, toolID, title string) (string, error) {
	if toolID == "" {
		return "", ErrToolRequired
	}

	now := s.now()
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		ToolID:    toolID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.turns[conv.ID] = make([]chat.Turn, 0, 16)
	s.mu.Unlock()

	return conv.ID, nil
}

// GetConversation retrieves a conversation by identifier.
func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	s.mu.RUnlock()

	sortConversations(out)
	return out, nil
}

// TouchConversation bumps the conversation's update time.
func (s *MemoryStore) TouchConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.UpdatedAt = s.now()
	s.conversations[conversationID] = conv
	return nil
}

// AppendTurn appends a turn to the conversation history.
func (s *MemoryStore) AppendTurn(_ context.Context, conversationID string, turn chat.Turn) (chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return chat.Turn{}, ErrConversationNotFound
	}

	turn.ID = uuid.NewString()
	turn.ConversationID = conversationID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return turn, nil
}

// ListTurns returns stored turns for the conversation in replay order.
func (s *MemoryStore) ListTurns(_ context.Context, conversationID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	sortTurns(copied)
	return copied, nil
}

// RecordAudit stores an audit entry.
func (s *MemoryStore) RecordAudit(_ context.Context, entry chat.AuditEntry) error {
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.audit = append(s.audit, entry)
	s.mu.Unlock()
	return nil
}

// AuditLog returns a copy of recorded audit entries.
func (s *MemoryStore) AuditLog() []chat.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.AuditEntry(nil), s.audit...)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// sortTurns orders by creation time and keeps insertion order for ties.
func sortTurns(turns []chat.Turn) {
	slices.SortStableFunc(turns, func(a, b chat.Turn) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func sortConversations(convs []chat.Conversation) {
	slices.SortStableFunc(convs, func(a, b chat.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}

var _ Store = (*MemoryStore)(nil)
