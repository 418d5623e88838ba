package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
	"github.com/zhouzirui/scene-studio/backend/pkg/utils"
)

// Handler 会话查询的HTTP处理器
type Handler struct {
	store chatService.Store
	log   zerolog.Logger
}

// New 创建会话处理器
func New(store chatService.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   logger.With().Str("component", "conversations").Logger(),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleListConversations)
	r.Get("/conversations/{conversationID}/turns", h.handleListTurns)
}

// handleListConversations 列出当前用户的会话，最近更新的在前
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListConversations(r.Context(), utils.UserID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("list conversations")
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	utils.RespondJSON(w, http.StatusOK, convs)
}

// handleListTurns 返回会话的消息记录
func (h *Handler) handleListTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	conv, err := h.store.GetConversation(r.Context(), id)
	if errors.Is(err, chatService.ErrConversationNotFound) || (err == nil && conv.UserID != utils.UserID(r)) {
		utils.RespondError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", id).Msg("get conversation")
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	turns, err := h.store.ListTurns(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", id).Msg("list turns")
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if turns == nil {
		turns = []chat.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, turns)
}
