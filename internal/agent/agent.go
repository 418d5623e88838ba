// Package agent defines the streaming agent contract, the registry that maps
// agent ids to implementations, and the concrete agents served by the API.
package agent

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
	"github.com/zhouzirui/scene-studio/backend/internal/provider"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

// Agent answers one chat request as a stream of events. The returned channel
// is closed after the final event; a well-behaved agent ends with exactly one
// done event. Cancelling ctx stops the agent, after which it may close the
// channel without sending done.
type Agent interface {
	ID() string
	SystemPrompt() string
	ModelID() string
	StreamChat(ctx context.Context, req Request) <-chan sse.Event
}

// Request carries one user turn. History holds the stored turns of the
// conversation excluding this one.
type Request struct {
	Context     chat.Context
	Message     string
	Attachments []chat.Attachment
	History     []chat.Turn
}

// Current returns the request as an unsaved user turn.
func (r Request) Current() chat.Turn {
	turn, err := chat.NewTurn(chat.RoleUser, r.Message, r.Attachments)
	if err != nil {
		// attachments are plain structs and always encode
		return chat.Turn{Role: chat.RoleUser, Text: r.Message}
	}
	turn.ConversationID = r.Context.ConversationID
	return turn
}

// Provider is the part of provider.Client an agent calls.
type Provider interface {
	CreateChatStream(ctx context.Context, modelID string, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
	GenerateImage(ctx context.Context, req provider.ImageRequest) (string, error)
}

// Rehoster copies a generated image to permanent storage.
type Rehoster interface {
	Rehost(ctx context.Context, url string) (string, error)
}

// Deps are the per-agent collaborators. Zero timeouts disable the limit.
type Deps struct {
	Provider      Provider
	Logger        zerolog.Logger
	ChatModel     string
	ImageModel    string
	StreamTimeout time.Duration
	ImageTimeout  time.Duration
	// Rehoster is optional.
	Rehoster Rehoster
}

// Constructor builds an agent from its dependencies.
type Constructor func(Deps) Agent
