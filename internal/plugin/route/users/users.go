package users

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chatstack/chat-service/internal/model"
	registryroute "github.com/chatstack/chat-service/internal/registry/route"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 300,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts the save-user route.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, auth gin.HandlerFunc) {
	r.POST("/users", auth, func(c *gin.Context) {
		saveUser(c, store)
	})
}

func saveUser(c *gin.Context, store registrystore.ConversationStore) {
	userID := security.GetUserID(c)

	var req struct {
		Email string  `json:"email"`
		Name  *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "email is required", "field": "email"})
		return
	}

	created, err := store.EnsureUser(c.Request.Context(), model.User{
		ID:    userID,
		Email: &req.Email,
		Name:  req.Name,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, gin.H{"success": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func handleError(c *gin.Context, err error) {
	var validation *registrystore.ValidationError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	default:
		log.Error("Save user failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
