package metrics

import (
	"context"
	"time"

	"github.com/chatstack/chat-service/internal/model"
	"github.com/chatstack/chat-service/internal/registry/store"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/google/uuid"
)

// Wrap returns a ConversationStore that records StoreLatency for every operation.
func Wrap(inner store.ConversationStore) store.ConversationStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ConversationStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) UpsertAppend(ctx context.Context, ownerID string, conversationID *uuid.UUID, titleIfNew string, pair model.MessagePair) (uuid.UUID, error) {
	defer observe("upsert_append", time.Now())
	return m.inner.UpsertAppend(ctx, ownerID, conversationID, titleIfNew, pair)
}

func (m *metricsStore) ListConversations(ctx context.Context, ownerID string) ([]store.ConversationSummary, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, ownerID)
}

func (m *metricsStore) GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, ownerID, conversationID)
}

func (m *metricsStore) RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error {
	defer observe("rename_conversation", time.Now())
	return m.inner.RenameConversation(ctx, ownerID, conversationID, title)
}

func (m *metricsStore) DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error {
	defer observe("delete_conversation", time.Now())
	return m.inner.DeleteConversation(ctx, ownerID, conversationID)
}

func (m *metricsStore) EnsureUser(ctx context.Context, user model.User) (bool, error) {
	defer observe("ensure_user", time.Now())
	return m.inner.EnsureUser(ctx, user)
}

func (m *metricsStore) TouchUser(ctx context.Context, userID string) error {
	defer observe("touch_user", time.Now())
	return m.inner.TouchUser(ctx, userID)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

var _ store.ConversationStore = (*metricsStore)(nil)
