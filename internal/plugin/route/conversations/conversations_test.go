package conversations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatstack/chat-service/internal/config"
	"github.com/chatstack/chat-service/internal/model"
	"github.com/chatstack/chat-service/internal/plugin/store/memory"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, store *memory.MemoryStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	resolver := security.NewTokenResolver(&cfg)

	router := gin.New()
	MountRoutes(router, store, security.AuthMiddleware(resolver, nil))
	return router
}

func doRequest(router *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedConversation(t *testing.T, store *memory.MemoryStore, owner, title string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	convID, err := store.UpsertAppend(context.Background(), owner, nil, title, model.MessagePair{
		User:      model.Message{Role: model.RoleUser, Content: "q", Timestamp: now},
		Assistant: model.Message{Role: model.RoleAssistant, Content: "a", Timestamp: now},
	})
	require.NoError(t, err)
	return convID
}

func TestListConversations_RequiresAuth(t *testing.T) {
	router := newTestRouter(t, memory.New())

	rec := doRequest(router, http.MethodGet, "/conversations", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListConversations_OwnerScoped(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store)

	seedConversation(t, store, "user1", "mine")
	seedConversation(t, store, "user2", "theirs")

	rec := doRequest(router, http.MethodGet, "/conversations", "", "user1")
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "mine", summaries[0]["title"])
	assert.Contains(t, summaries[0], "conversationId")
	assert.Contains(t, summaries[0], "createdAt")
	assert.Contains(t, summaries[0], "updatedAt")
	assert.NotContains(t, summaries[0], "messages")
}

func TestGetConversation_FullPayload(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store)
	convID := seedConversation(t, store, "user1", "mine")

	rec := doRequest(router, http.MethodGet, "/conversations/"+convID.String(), "", "user1")
	require.Equal(t, http.StatusOK, rec.Code)

	var conv map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, convID.String(), conv["conversationId"])
	messages, ok := conv["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestGetConversation_CrossOwnerIs404(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store)
	convID := seedConversation(t, store, "user1", "mine")

	rec := doRequest(router, http.MethodGet, "/conversations/"+convID.String(), "", "user2")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetConversation_MalformedIDIs404(t *testing.T) {
	router := newTestRouter(t, memory.New())

	rec := doRequest(router, http.MethodGet, "/conversations/not-a-uuid", "", "user1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenameConversation(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store)
	convID := seedConversation(t, store, "user1", "old")

	rec := doRequest(router, http.MethodPatch, "/conversations/"+convID.String(), `{"title":"new title"}`, "user1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	conv, err := store.GetConversation(context.Background(), "user1", convID)
	require.NoError(t, err)
	assert.Equal(t, "new title", conv.Title)
}

func TestRenameConversation_EmptyTitleIs400(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store)
	convID := seedConversation(t, store, "user1", "old")

	rec := doRequest(router, http.MethodPatch, "/conversations/"+convID.String(), `{"title":""}`, "user1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store)
	convID := seedConversation(t, store, "user1", "mine")

	rec := doRequest(router, http.MethodDelete, "/conversations/"+convID.String(), "", "user1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = doRequest(router, http.MethodDelete, "/conversations/"+convID.String(), "", "user1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
