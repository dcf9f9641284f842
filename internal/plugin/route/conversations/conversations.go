package conversations

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registryroute "github.com/chatstack/chat-service/internal/registry/route"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 200,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts conversation routes on the engine.
// Called after store initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, auth gin.HandlerFunc) {
	g := r.Group("/conversations", auth)

	g.GET("", func(c *gin.Context) {
		listConversations(c, store)
	})
	g.GET("/:conversationId", func(c *gin.Context) {
		getConversation(c, store)
	})
	g.PATCH("/:conversationId", func(c *gin.Context) {
		renameConversation(c, store)
	})
	g.DELETE("/:conversationId", func(c *gin.Context) {
		deleteConversation(c, store)
	})
}

func listConversations(c *gin.Context, store registrystore.ConversationStore) {
	userID := security.GetUserID(c)

	summaries, err := store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func getConversation(c *gin.Context, store registrystore.ConversationStore) {
	userID := security.GetUserID(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	conv, err := store.GetConversation(c.Request.Context(), userID, convID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func renameConversation(c *gin.Context, store registrystore.ConversationStore) {
	userID := security.GetUserID(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := store.RenameConversation(c.Request.Context(), userID, convID, req.Title); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func deleteConversation(c *gin.Context, store registrystore.ConversationStore) {
	userID := security.GetUserID(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	if err := store.DeleteConversation(c.Request.Context(), userID, convID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var unavailable *registrystore.UnavailableError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &unavailable):
		log.Error("Store unavailable", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		log.Error("Conversation request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
