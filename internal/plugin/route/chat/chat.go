package chat

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	internalchat "github.com/chatstack/chat-service/internal/chat"
	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
	registryroute "github.com/chatstack/chat-service/internal/registry/route"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts the chat route. optionalAuth resolves the caller identity
// when a token is presented and lets anonymous requests through.
func MountRoutes(r *gin.Engine, orch *internalchat.Orchestrator, optionalAuth gin.HandlerFunc) {
	r.POST("/chat", optionalAuth, func(c *gin.Context) {
		handleChat(c, orch)
	})
}

type chatRequest struct {
	Inputs         string  `json:"inputs"`
	ConversationID *string `json:"conversationId"`
	IsTemp         *bool   `json:"isTemp"`
}

func handleChat(c *gin.Context, orch *internalchat.Orchestrator) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Omitted isTemp means a transient turn; persistence is opt-in.
	persist := req.IsTemp != nil && !*req.IsTemp

	if persist && !security.HasUser(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "persisting a conversation requires authentication"})
		return
	}

	var convID *uuid.UUID
	if req.ConversationID != nil && *req.ConversationID != "" {
		id, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversationId"})
			return
		}
		convID = &id
	}

	var ownerID *string
	if security.HasUser(c) {
		id := security.GetUserID(c)
		ownerID = &id
	}

	result, err := orch.HandleTurn(c.Request.Context(), ownerID, convID, req.Inputs, persist)
	if err != nil {
		handleError(c, err)
		return
	}

	resp := gin.H{"response": result.Response}
	if result.ConversationID != nil {
		resp["conversationId"] = result.ConversationID.String()
	}
	c.JSON(http.StatusOK, resp)
}

func handleError(c *gin.Context, err error) {
	var validation *registrystore.ValidationError
	var unavailable *registrystore.UnavailableError
	var upstream *registryinference.UpstreamError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &upstream):
		log.Error("Inference call failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "model inference failed"})
	case errors.As(err, &unavailable):
		log.Error("Store unavailable", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		log.Error("Chat turn failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
