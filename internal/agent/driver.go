package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/agent/demux"
	"github.com/zhouzirui/scene-studio/backend/internal/agent/history"
	"github.com/zhouzirui/scene-studio/backend/internal/provider"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

// VisionCopy holds the user-facing texts of a vision agent.
type VisionCopy struct {
	// Clarify asks for a reference image when none can be found.
	Clarify   string
	Analyzing string
	// Skipped explains that no render directive was produced.
	Skipped   string
	Rendering string
	ImageAlt  string
	Closing   string
	// ErrorText is used when a failure carries no message of its own.
	ErrorText string
}

// Operation names used in timeout messages.
const (
	opNarrate = "模型回复"
	opRender  = "图片生成"
)

type stage int

const (
	stageResolveReference stage = iota
	stageNarrateAndCapture
	stageExtract
	stageGenerate
	stageDone
	stageError
	// stageStopped ends the run silently after the client went away.
	stageStopped
)

func (s stage) String() string {
	switch s {
	case stageResolveReference:
		return "resolve_reference"
	case stageNarrateAndCapture:
		return "narrate_and_capture"
	case stageExtract:
		return "extract"
	case stageGenerate:
		return "generate"
	case stageDone:
		return "done"
	case stageError:
		return "error"
	case stageStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s stage) terminal() bool {
	return s == stageDone || s == stageError || s == stageStopped
}

// VisionAgent streams an analysis of a reference image, captures the
// <image_prompt> directive embedded in it and renders a new image from the
// directive and the reference.
type VisionAgent struct {
	id     string
	prompt string
	texts  VisionCopy
	weight float64
	deps   Deps
	log    zerolog.Logger
}

// NewVisionAgent creates a vision-to-image agent. weight is the reference
// image blend weight passed to the image model.
func NewVisionAgent(id, prompt string, texts VisionCopy, weight float64, deps Deps) *VisionAgent {
	return &VisionAgent{
		id:     id,
		prompt: prompt,
		texts:  texts,
		weight: weight,
		deps:   deps,
		log:    deps.Logger.With().Str("agent", id).Logger(),
	}
}

func (a *VisionAgent) ID() string           { return a.id }
func (a *VisionAgent) SystemPrompt() string { return a.prompt }
func (a *VisionAgent) ModelID() string      { return a.deps.ChatModel }

// StreamChat runs the pipeline on its own goroutine. Narration is forwarded
// as it arrives; the image call starts only after the text stream ended.
func (a *VisionAgent) StreamChat(ctx context.Context, req Request) <-chan sse.Event {
	out := make(chan sse.Event)
	go func() {
		defer close(out)
		run := &visionRun{
			agent: a,
			req:   req,
			emit:  emitter{ctx: ctx, out: out, sessionID: req.Context.ConversationID},
			log:   a.log.With().Str("conversation_id", req.Context.ConversationID).Logger(),
		}
		guard(run.log, run.emit, func() { run.drive(ctx) })
	}()
	return out
}

// visionRun is the state of one request.
type visionRun struct {
	agent *VisionAgent
	req   Request
	emit  emitter
	log   zerolog.Logger

	reference string
	demux     *demux.Demux
	directive string
	failure   string
}

func (r *visionRun) drive(ctx context.Context) {
	st := stageResolveReference
	for !st.terminal() {
		next := r.step(ctx, st)
		r.log.Debug().Stringer("from", st).Stringer("to", next).Msg("stage transition")
		st = next
	}

	switch st {
	case stageError:
		if !r.emit.send(sse.Error(r.failure)) {
			return
		}
		fallthrough
	case stageDone:
		r.emit.send(sse.Done())
	}
}

func (r *visionRun) step(ctx context.Context, st stage) stage {
	switch st {
	case stageResolveReference:
		return r.resolveReference()
	case stageNarrateAndCapture:
		return r.narrateAndCapture(ctx)
	case stageExtract:
		return r.extract()
	case stageGenerate:
		return r.generate(ctx)
	default:
		return stageError
	}
}

func (r *visionRun) resolveReference() stage {
	url, ok := ResolveReference(r.req.Attachments, r.req.History)
	if !ok {
		r.log.Info().Msg("no reference image, asking user for one")
		if !r.emit.text(r.agent.texts.Clarify) {
			return stageStopped
		}
		return stageDone
	}
	r.reference = url
	return stageNarrateAndCapture
}

func (r *visionRun) narrateAndCapture(ctx context.Context) stage {
	if !r.emit.text(r.agent.texts.Analyzing) {
		return stageStopped
	}

	current := r.req.Current()
	messages := history.Build(r.agent.prompt, r.req.History, &current, r.log)

	timeout := r.agent.deps.StreamTimeout
	streamCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	stream, err := r.agent.deps.Provider.CreateChatStream(streamCtx, r.agent.ModelID(), messages)
	if err != nil {
		return r.fail(ctx, streamCtx, opNarrate, timeout, err)
	}

	r.demux = demux.New()
	err = consumeStream(streamCtx, stream, func(delta string) bool {
		if text := r.demux.Feed(delta); text != "" {
			return r.emit.text(text)
		}
		return true
	})
	if errors.Is(err, errStopped) || ctx.Err() != nil {
		return stageStopped
	}
	if err != nil {
		return r.fail(ctx, streamCtx, opNarrate, timeout, err)
	}

	if tail := r.demux.Flush(); tail != "" && !r.emit.text(tail) {
		return stageStopped
	}
	r.log.Debug().Int("response_bytes", len(r.demux.Full())).Stringer("demux_state", r.demux.State()).Msg("text stream finished")
	return stageExtract
}

func (r *visionRun) extract() stage {
	directive, ok := r.demux.Extract()
	if !ok {
		r.log.Warn().Msg("model produced no image directive, skipping render")
		if !r.emit.text(r.agent.texts.Skipped) {
			return stageStopped
		}
		return stageDone
	}
	r.directive = directive
	return stageGenerate
}

func (r *visionRun) generate(ctx context.Context) stage {
	if !r.emit.text(r.agent.texts.Rendering) {
		return stageStopped
	}

	timeout := r.agent.deps.ImageTimeout
	imageCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req := provider.ImageRequest{
		Model:        r.agent.deps.ImageModel,
		Prompt:       r.directive,
		ReferenceURL: r.reference,
		Weight:       r.agent.weight,
	}
	url, err := callWithContext(imageCtx, func(ctx context.Context) (string, error) {
		return r.agent.deps.Provider.GenerateImage(ctx, req)
	})
	if ctx.Err() != nil {
		return stageStopped
	}
	if err == nil && url == "" {
		err = provider.ErrEmptyImage
	}
	if err != nil {
		return r.fail(ctx, imageCtx, opRender, timeout, err)
	}

	if rehoster := r.agent.deps.Rehoster; rehoster != nil {
		hosted, err := rehoster.Rehost(ctx, url)
		if err != nil {
			r.log.Warn().Err(err).Str("url", url).Msg("rehost failed, keeping provider url")
		} else {
			url = hosted
		}
	}

	r.log.Info().Str("image_url", url).Msg("image generated")
	if !r.emit.text(fmt.Sprintf("![%s](%s)\n\n%s", r.agent.texts.ImageAlt, url, r.agent.texts.Closing)) {
		return stageStopped
	}
	return stageDone
}

func (r *visionRun) fail(ctx, opCtx context.Context, op string, timeout time.Duration, err error) stage {
	if ctx.Err() != nil {
		return stageStopped
	}
	r.failure = failureText(opCtx, op, timeout, err, r.agent.texts.ErrorText)
	r.log.Error().Err(err).Str("op", op).Msg("vision pipeline failed")
	return stageError
}
