package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/courier/internal/http/handler"
	"basegraph.app/courier/internal/http/handler/webhook"
)

type RouterConfig struct {
	ServiceName   string
	GitHubWebhook *webhook.GitHubWebhookHandler
	// GitLabWebhook is nil when GitLab is not configured.
	GitLabWebhook *webhook.GitLabWebhookHandler
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": cfg.ServiceName})
	})

	schemaHandler := handler.NewSchemaHandler()
	router.GET("/schema/task-context", schemaHandler.TaskContext)

	WebhookRouter(router.Group("/webhooks"), cfg.GitHubWebhook, cfg.GitLabWebhook)
	if cfg.GitHubWebhook != nil {
		router.POST("/webhook", cfg.GitHubWebhook.HandleEvent)
	}
}
