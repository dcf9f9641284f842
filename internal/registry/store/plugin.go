package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chatstack/chat-service/internal/model"
	"github.com/google/uuid"
)

// ConversationSummary is a lightweight conversation representation for lists.
type ConversationSummary struct {
	ID        uuid.UUID `json:"conversationId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationStore defines the primary data access interface for the chat service.
// Every conversation operation is owner-scoped: a conversation that exists but
// belongs to another user behaves as if it does not exist.
type ConversationStore interface {
	// UpsertAppend appends a user/assistant message pair to the conversation,
	// creating it (with titleIfNew) when it does not yet exist for this owner.
	// A nil conversationID always creates. The find-or-create and the append
	// happen as a single atomic operation; the resolved conversation ID is
	// returned.
	UpsertAppend(ctx context.Context, ownerID string, conversationID *uuid.UUID, titleIfNew string, pair model.MessagePair) (uuid.UUID, error)

	ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error)
	GetConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) (*model.Conversation, error)
	RenameConversation(ctx context.Context, ownerID string, conversationID uuid.UUID, title string) error
	DeleteConversation(ctx context.Context, ownerID string, conversationID uuid.UUID) error

	// EnsureUser upserts the user record, refreshing email/name/lastActiveAt
	// when it already exists. The returned bool is true when the record was
	// created by this call.
	EnsureUser(ctx context.Context, user model.User) (bool, error)
	// TouchUser bumps lastActiveAt only.
	TouchUser(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Loader creates a ConversationStore from config.
type Loader func(ctx context.Context) (ConversationStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
