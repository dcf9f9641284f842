package chat

import (
	"context"
	"time"

	"github.com/chatstack/chat-service/internal/model"
	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/google/uuid"
)

// titleMaxRunes bounds the auto-derived conversation title.
const titleMaxRunes = 50

// Orchestrator runs a single chat turn: generate a reply, then (optionally)
// persist the user/assistant pair as one unit.
type Orchestrator struct {
	store registrystore.ConversationStore
	llm   registryinference.Client
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(store registrystore.ConversationStore, llm registryinference.Client) *Orchestrator {
	return &Orchestrator{store: store, llm: llm}
}

// TurnResult is the outcome of a completed chat turn.
type TurnResult struct {
	Response       string
	ConversationID *uuid.UUID
}

// HandleTurn executes one chat turn. ownerID is nil for anonymous callers;
// persist with a nil ownerID is a caller error, never a silent downgrade to a
// transient turn. When the inference call fails nothing is persisted and the
// typed upstream error is returned untouched.
func (o *Orchestrator) HandleTurn(ctx context.Context, ownerID *string, conversationID *uuid.UUID, userMessage string, persist bool) (*TurnResult, error) {
	if userMessage == "" {
		return nil, &registrystore.ValidationError{Field: "inputs", Message: "must not be empty"}
	}
	if persist && ownerID == nil {
		return nil, &registrystore.ValidationError{Field: "isTemp", Message: "persisting a conversation requires authentication"}
	}

	response, err := o.llm.Generate(ctx, userMessage)
	if err != nil {
		return nil, err
	}

	if !persist {
		return &TurnResult{Response: response}, nil
	}

	now := time.Now().UTC()
	pair := model.MessagePair{
		User:      model.Message{Role: model.RoleUser, Content: userMessage, Timestamp: now},
		Assistant: model.Message{Role: model.RoleAssistant, Content: response, Timestamp: now},
	}
	convID, err := o.store.UpsertAppend(ctx, *ownerID, conversationID, TitleForMessage(userMessage), pair)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Response: response, ConversationID: &convID}, nil
}

// TitleForMessage derives a conversation title from the first user message.
func TitleForMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= titleMaxRunes {
		return message
	}
	return string(runes[:titleMaxRunes])
}
