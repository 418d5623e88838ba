package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/handler/chat"
	"github.com/zhouzirui/scene-studio/backend/internal/handler/stream"
	"github.com/zhouzirui/scene-studio/backend/internal/handler/tool"
	"github.com/zhouzirui/scene-studio/backend/internal/handler/ws"
	"github.com/zhouzirui/scene-studio/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/scene-studio/backend/internal/middleware"
	toolModel "github.com/zhouzirui/scene-studio/backend/internal/model/tool"
	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
	"github.com/zhouzirui/scene-studio/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(tools toolModel.Store, store chatService.Store, dispatcher *chatService.Dispatcher, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		tool.New(tools).RegisterRoutes(api)
		chat.New(store, logger).RegisterRoutes(api)
		stream.New(dispatcher, logger).RegisterRoutes(api)
		ws.New(dispatcher, logger).RegisterRoutes(api)
	})

	return r
}
