package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/agent"
	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
	"github.com/zhouzirui/scene-studio/backend/internal/model/tool"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

// Input errors, reported to the caller before any stream starts.
var (
	ErrEmptyRequest = errors.New("message or attachments required")
	ErrToolNotFound = errors.New("tool not found or disabled")
	ErrNoAgent      = errors.New("no agent available")
)

// StreamRequest is the inbound chat request.
type StreamRequest struct {
	Message        string            `json:"message"`
	ToolID         string            `json:"toolId"`
	ConversationID string            `json:"conversationId,omitempty"`
	Attachments    []chat.Attachment `json:"attachments,omitempty"`
}

// Client describes who sent a request, for ownership and auditing.
type Client struct {
	UserID    string
	IP        string
	UserAgent string
}

// Dispatcher prepares chat runs: it validates the request, resolves the tool
// and its agent, and records the user turn before the agent starts.
type Dispatcher struct {
	store  Store
	tools  tool.Store
	agents *agent.Registry
	log    zerolog.Logger
}

func NewDispatcher(store Store, tools tool.Store, agents *agent.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		tools:  tools,
		agents: agents,
		log:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Start validates req and persists the user turn. The returned Run streams
// the agent's answer; its history excludes the turn just stored.
func (d *Dispatcher) Start(ctx context.Context, req StreamRequest, client Client) (*Run, error) {
	if req.Message == "" && len(req.Attachments) == 0 {
		return nil, ErrEmptyRequest
	}
	if req.ToolID == "" {
		return nil, ErrToolRequired
	}

	t, ok := d.tools.FindByID(req.ToolID)
	if !ok || !t.Enabled {
		return nil, ErrToolNotFound
	}
	ag := d.agents.Resolve(t.AgentID)
	if ag == nil {
		return nil, ErrNoAgent
	}

	conversationID, history, err := d.conversation(ctx, req, client.UserID)
	if err != nil {
		return nil, err
	}

	userTurn, err := chat.NewTurn(chat.RoleUser, req.Message, req.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encode user turn: %w", err)
	}
	if _, err := d.store.AppendTurn(ctx, conversationID, userTurn); err != nil {
		return nil, fmt.Errorf("save user turn: %w", err)
	}

	d.log.Info().
		Str("conversation_id", conversationID).
		Str("tool_id", t.ID).
		Str("agent", ag.ID()).
		Int("history", len(history)).
		Msg("starting agent stream")

	return &Run{
		ConversationID: conversationID,
		store:          d.store,
		log:            d.log.With().Str("conversation_id", conversationID).Logger(),
		tool:           t,
		agent:          ag,
		client:         client,
		request: agent.Request{
			Context: chat.Context{
				ConversationID: conversationID,
				ToolID:         t.ID,
				UserID:         client.UserID,
			},
			Message:     req.Message,
			Attachments: req.Attachments,
			History:     history,
		},
	}, nil
}

// conversation loads the requested conversation and its turns, or creates a
// new one titled after the message.
func (d *Dispatcher) conversation(ctx context.Context, req StreamRequest, userID string) (string, []chat.Turn, error) {
	if req.ConversationID == "" {
		id, err := d.store.CreateConversation(ctx, userID, req.ToolID, Title(req.Message))
		if err != nil {
			return "", nil, fmt.Errorf("create conversation: %w", err)
		}
		return id, nil, nil
	}

	conv, err := d.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return "", nil, err
	}
	if conv.UserID != userID {
		return "", nil, ErrConversationNotFound
	}
	turns, err := d.store.ListTurns(ctx, conv.ID)
	if err != nil {
		return "", nil, err
	}
	return conv.ID, turns, nil
}

// Run is one accepted chat request. Observe must see every event that was
// delivered before Finish is called. A Run is used by one goroutine.
type Run struct {
	ConversationID string

	store   Store
	log     zerolog.Logger
	tool    tool.Tool
	agent   agent.Agent
	client  Client
	request agent.Request

	reply     strings.Builder
	lastError string
}

// Agent returns the agent serving the run.
func (r *Run) Agent() agent.Agent {
	return r.agent
}

// Stream starts the agent.
func (r *Run) Stream(ctx context.Context) <-chan sse.Event {
	return r.agent.StreamChat(ctx, r.request)
}

// Observe accumulates the reply text and remembers the last error.
func (r *Run) Observe(ev sse.Event) {
	switch ev.Event {
	case sse.KindMessage:
		r.reply.WriteString(ev.Data.Answer)
	case sse.KindError:
		r.lastError = ev.Data.Message
	}
}

// Reply is the assistant text to persist: the accumulated answer followed
// by the last error, if any, so a failed run reads as failed in history.
func (r *Run) Reply() string {
	reply := r.reply.String()
	if r.lastError == "" {
		return reply
	}
	if reply == "" {
		return "错误: " + r.lastError
	}
	return reply + "\n\n错误: " + r.lastError
}

// Finish stores the assistant turn and the audit entry. It runs even when
// ctx was cancelled by a client disconnect.
func (r *Run) Finish(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var result *multierror.Error

	if reply := r.Reply(); reply != "" {
		if _, err := r.store.AppendTurn(ctx, r.ConversationID, chat.Turn{Role: chat.RoleAssistant, Text: reply}); err != nil {
			result = multierror.Append(result, fmt.Errorf("save assistant turn: %w", err))
		} else if err := r.store.TouchConversation(ctx, r.ConversationID); err != nil {
			result = multierror.Append(result, fmt.Errorf("touch conversation: %w", err))
		}
	}

	err := r.store.RecordAudit(ctx, chat.AuditEntry{
		UserID:    r.client.UserID,
		Action:    chat.ActionToolUse,
		Detail:    "Used Custom Agent: " + r.tool.Name,
		IP:        r.client.IP,
		UserAgent: r.client.UserAgent,
	})
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("record audit: %w", err))
	}

	r.log.Info().Int("reply_len", len(r.Reply())).Bool("failed", r.lastError != "").Msg("chat run finished")
	return result.ErrorOrNil()
}
