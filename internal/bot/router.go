package bot

import (
	"context"
	"crypto/subtle"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router serving the webhook
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger, deps.Token))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Bot running")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.Service,
			"version": deps.Version,
		})
	})

	h := NewHandler(deps)

	// POST /<bot token> - Telegram update delivery
	r.POST("/:token", h.Webhook)

	return r
}

// Webhook decodes a Telegram update and handles it before responding.
func (h *Handler) Webhook(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(h.token)) != 1 {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	if c.ContentType() != gin.MIMEJSON {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	// Telegram dropping the connection must not abort a running job
	h.HandleUpdate(context.WithoutCancel(c.Request.Context()), update)

	c.String(http.StatusOK, "")
}
