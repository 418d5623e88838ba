package chat

import (
	"context"
	"errors"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
)

var (
	ErrToolRequired         = errors.New("tool id is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store is the persistence port used around a chat stream. Turns come back
// in replay order (creation time, then insertion order).
type Store interface {
	CreateConversation(ctx context.Context, userID, toolID, title string) (string, error)
	GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	TouchConversation(ctx context.Context, conversationID string) error

	ListTurns(ctx context.Context, conversationID string) ([]chat.Turn, error)
	AppendTurn(ctx context.Context, conversationID string, turn chat.Turn) (chat.Turn, error)

	RecordAudit(ctx context.Context, entry chat.AuditEntry) error
	Close() error
}
