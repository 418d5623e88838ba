package tool

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/scene-studio/backend/internal/model/tool"
	"github.com/zhouzirui/scene-studio/backend/pkg/utils"
)

// Handler 工具目录的HTTP处理器
type Handler struct {
	tools tool.Store
}

// New 创建工具处理器
func New(tools tool.Store) *Handler {
	return &Handler{
		tools: tools,
	}
}

// RegisterRoutes 注册工具相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tools", h.handleListTools)
}

// handleListTools 列出所有启用的工具
func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	enabled := make([]tool.Tool, 0)
	for _, t := range h.tools.List() {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	utils.RespondJSON(w, http.StatusOK, enabled)
}
