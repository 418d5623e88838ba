// Package ws serves chat runs over a WebSocket connection.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/zhouzirui/scene-studio/backend/internal/handler/stream"
	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler WebSocket聊天处理器
type Handler struct {
	dispatcher *chatService.Dispatcher
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// New 创建WebSocket处理器
func New(dispatcher *chatService.Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

// handleWebSocket 处理WebSocket连接。每条入站 JSON 消息是一次聊天请求，
// 请求按顺序处理，事件以 JSON 文本帧发送并以 done 结束。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	client := stream.ClientFrom(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	var wg conc.WaitGroup
	defer wg.Wait()
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	wg.Go(func() { pingLoop(ctx, conn) })

	h.log.Info().Str("user_id", client.UserID).Msg("connection opened")

	for {
		var req chatService.StreamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		if err := h.serve(ctx, conn, req, client); err != nil {
			h.log.Debug().Err(err).Msg("connection lost while streaming")
			return
		}
		// streaming may outlast the read deadline; pongs are only processed while reading
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// serve runs one request and returns the first write error.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, req chatService.StreamRequest, client chatService.Client) error {
	run, err := h.dispatcher.Start(ctx, req, client)
	if err != nil {
		_, msg := stream.Status(err)
		if werr := writeEvent(conn, sse.Error(msg)); werr != nil {
			return werr
		}
		return writeEvent(conn, sse.Done())
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		writeErr error
		sawDone  bool
	)
	for ev := range run.Stream(runCtx) {
		if writeErr != nil || sawDone {
			continue
		}
		run.Observe(ev)
		if err := writeEvent(conn, ev); err != nil {
			writeErr = err
			stop()
			continue
		}
		sawDone = ev.IsTerminal()
	}

	if err := run.Finish(ctx); err != nil {
		h.log.Error().Err(err).Str("conversation_id", run.ConversationID).Msg("failed to persist chat run")
	}
	if writeErr != nil {
		return writeErr
	}
	if !sawDone {
		return writeEvent(conn, sse.Done())
	}
	return nil
}

func writeEvent(conn *websocket.Conn, ev sse.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
