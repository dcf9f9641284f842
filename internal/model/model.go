package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message within a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single utterance in a conversation.
type Message struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// MessagePair is the unit of persistence for one chat turn: the user's
// message followed by the assistant's reply.
type MessagePair struct {
	User      Message
	Assistant Message
}

// Conversation is a persisted conversation owned by a single user.
type Conversation struct {
	ID        uuid.UUID `json:"conversationId"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is a provisioned user record.
type User struct {
	ID           string     `json:"userId"`
	Email        *string    `json:"email,omitempty"`
	Name         *string    `json:"name,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActiveAt *time.Time `json:"lastActiveAt,omitempty"`
}
