package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
)

func setupRouter(t *testing.T) (*chi.Mux, *chatService.MemoryStore, string) {
	t.Helper()
	store := chatService.NewMemoryStore()
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, "u1", "scene", "教室")
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, id, chat.Turn{Role: chat.RoleUser, Text: "一间教室"})
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, id, chat.Turn{Role: chat.RoleAssistant, Text: "好的"})
	require.NoError(t, err)

	r := chi.NewRouter()
	New(store, zerolog.Nop()).RegisterRoutes(r)
	return r, store, id
}

func get(r http.Handler, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListConversationsScopedToUser(t *testing.T) {
	r, _, id := setupRouter(t)

	resp := get(r, "/conversations", "u1")
	require.Equal(t, http.StatusOK, resp.Code)
	var convs []chat.Conversation
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, id, convs[0].ID)

	resp = get(r, "/conversations", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "[]", resp.Body.String())
}

func TestListTurns(t *testing.T) {
	r, _, id := setupRouter(t)

	resp := get(r, "/conversations/"+id+"/turns", "u1")
	require.Equal(t, http.StatusOK, resp.Code)
	var turns []chat.Turn
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, "好的", turns[1].Text)
}

func TestListTurnsNotFound(t *testing.T) {
	r, _, id := setupRouter(t)

	assert.Equal(t, http.StatusNotFound, get(r, "/conversations/missing/turns", "u1").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/conversations/"+id+"/turns", "someone-else").Code)
}
