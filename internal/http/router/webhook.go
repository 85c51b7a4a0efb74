package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/courier/internal/http/handler/webhook"
)

func WebhookRouter(rg *gin.RouterGroup, github *webhook.GitHubWebhookHandler, gitlab *webhook.GitLabWebhookHandler) {
	if github != nil {
		rg.POST("/github", github.HandleEvent)
	}
	if gitlab != nil {
		rg.POST("/gitlab", gitlab.HandleEvent)
	}
}
