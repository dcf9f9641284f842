package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatstack/chat-service/internal/model"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/google/uuid"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			return New(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type convKey struct {
	ownerID string
	convID  uuid.UUID
}

// MemoryStore is an in-process ConversationStore. It backs unit tests and
// local development without a MongoDB instance.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[convKey]*model.Conversation
	users         map[string]*model.User
}

// New returns an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		conversations: map[convKey]*model.Conversation{},
		users:         map[string]*model.User{},
	}
}

func (s *MemoryStore) UpsertAppend(ctx context.Context, ownerID string, conversationID *uuid.UUID, titleIfNew string, pair model.MessagePair) (uuid.UUID, error) {
	convID := uuid.New()
	if conversationID != nil {
		convID = *conversationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := convKey{ownerID: ownerID, convID: convID}
	conv, ok := s.conversations[key]
	if !ok {
		conv = &model.Conversation{
			ID:        convID,
			OwnerID:   ownerID,
			Title:     titleIfNew,
			CreatedAt: now,
		}
		s.conversations[key] = conv
	}
	conv.Messages = append(conv.Messages, pair.User, pair.Assistant)
	conv.UpdatedAt = now
	return convID, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, ownerID string) ([]registrystore.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := []registrystore.ConversationSummary{}
	for key, conv := range s.conversations {
		if key.ownerID != ownerID {
			continue
		}
		summaries = append(summaries, registrystore.ConversationSummary{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convKey{ownerID: ownerID, convID: conversationID}]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	copied := *conv
	copied.Messages = append([]model.Message(nil), conv.Messages...)
	return &copied, nil
}

func (s *MemoryStore) RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error {
	if title == "" {
		return &registrystore.ValidationError{Field: "title", Message: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convKey{ownerID: ownerID, convID: conversationID}]
	if !ok {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := convKey{ownerID: ownerID, convID: conversationID}
	if _, ok := s.conversations[key]; !ok {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID.String()}
	}
	delete(s.conversations, key)
	return nil
}

func (s *MemoryStore) EnsureUser(ctx context.Context, user model.User) (bool, error) {
	if user.ID == "" {
		return false, &registrystore.ValidationError{Field: "userId", Message: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.users[user.ID]
	if !ok {
		s.users[user.ID] = &model.User{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			CreatedAt:    now,
			LastActiveAt: &now,
		}
		return true, nil
	}
	if user.Email != nil {
		existing.Email = user.Email
	}
	if user.Name != nil {
		existing.Name = user.Name
	}
	existing.LastActiveAt = &now
	return false, nil
}

func (s *MemoryStore) TouchUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	now := time.Now().UTC()
	user.LastActiveAt = &now
	return nil
}

// GetUser returns the stored user record, for tests.
func (s *MemoryStore) GetUser(userID string) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	copied := *user
	return &copied, true
}

func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

var _ registrystore.ConversationStore = (*MemoryStore)(nil)
