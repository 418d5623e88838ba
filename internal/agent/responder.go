package agent

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/agent/history"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

const responderErrorText = "模型处理失败"

// Responder is a plain conversational agent: every delta of the model reply
// is forwarded as a message event.
type Responder struct {
	id     string
	prompt string
	opts   []model.Option
	deps   Deps
	log    zerolog.Logger
}

// NewResponder creates a text agent. opts are passed to every chat call.
func NewResponder(id, prompt string, deps Deps, opts ...model.Option) *Responder {
	return &Responder{
		id:     id,
		prompt: prompt,
		opts:   opts,
		deps:   deps,
		log:    deps.Logger.With().Str("agent", id).Logger(),
	}
}

func (a *Responder) ID() string           { return a.id }
func (a *Responder) SystemPrompt() string { return a.prompt }
func (a *Responder) ModelID() string      { return a.deps.ChatModel }

func (a *Responder) StreamChat(ctx context.Context, req Request) <-chan sse.Event {
	out := make(chan sse.Event)
	go func() {
		defer close(out)
		emit := emitter{ctx: ctx, out: out, sessionID: req.Context.ConversationID}
		log := a.log.With().Str("conversation_id", req.Context.ConversationID).Logger()

		guard(log, emit, func() {
			failure, stopped := a.respond(ctx, req, emit, log)
			if stopped {
				return
			}
			if failure != "" && !emit.send(sse.Error(failure)) {
				return
			}
			emit.send(sse.Done())
		})
	}()
	return out
}

// respond streams the reply. It returns the failure text, if any, and whether
// the consumer went away.
func (a *Responder) respond(ctx context.Context, req Request, emit emitter, log zerolog.Logger) (string, bool) {
	current := req.Current()
	messages := history.Build(a.prompt, req.History, &current, log)

	timeout := a.deps.StreamTimeout
	streamCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	stream, err := a.deps.Provider.CreateChatStream(streamCtx, a.ModelID(), messages, a.opts...)
	if err == nil {
		received := 0
		err = consumeStream(streamCtx, stream, func(delta string) bool {
			received += len(delta)
			return emit.text(delta)
		})
		log.Debug().Int("response_bytes", received).Msg("text stream finished")
	}

	switch {
	case errors.Is(err, errStopped) || ctx.Err() != nil:
		return "", true
	case err != nil:
		log.Error().Err(err).Msg("chat stream failed")
		return failureText(streamCtx, opNarrate, timeout, err, responderErrorText), false
	default:
		return "", false
	}
}
