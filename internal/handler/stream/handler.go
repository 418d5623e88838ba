// Package stream serves chat runs over Server-Sent Events.
package stream

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
	"github.com/zhouzirui/scene-studio/backend/pkg/utils"
)

// Handler manages streaming agent responses via Server-Sent Events
type Handler struct {
	dispatcher *chatService.Dispatcher
	log        zerolog.Logger
}

// New creates a new stream handler
func New(dispatcher *chatService.Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "stream").Logger(),
	}
}

// RegisterRoutes 注册流式聊天路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
}

// ClientFrom collects the caller identity used for ownership and auditing.
func ClientFrom(r *http.Request) chatService.Client {
	return chatService.Client{
		UserID:    utils.UserID(r),
		IP:        utils.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// Status maps a dispatcher error to the HTTP status and message returned
// before any stream starts.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrEmptyRequest), errors.Is(err, chatService.ErrToolRequired):
		return http.StatusBadRequest, "Missing required fields"
	case errors.Is(err, chatService.ErrToolNotFound):
		return http.StatusNotFound, "Tool not found or disabled"
	case errors.Is(err, chatService.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, chatService.ErrNoAgent):
		return http.StatusServiceUnavailable, "Agent unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var req chatService.StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	run, err := h.dispatcher.Start(ctx, req, ClientFrom(r))
	if err != nil {
		status, msg := Status(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("tool_id", req.ToolID).Msg("failed to start chat run")
		}
		utils.RespondError(w, status, msg)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.Flush(w)

	writer := sse.NewWriter(w)
	log := h.log.With().Str("conversation_id", run.ConversationID).Str("agent", run.Agent().ID()).Logger()

	if err := sse.Pump(ctx, writer, run.Stream(ctx), run.Observe); err != nil {
		log.Debug().Err(err).Msg("client went away mid-stream")
	}
	if err := run.Finish(ctx); err != nil {
		log.Error().Err(err).Msg("failed to persist chat run")
	}
	if err := writer.Close(); err != nil {
		log.Debug().Err(err).Msg("could not write stream terminator")
	}
}
