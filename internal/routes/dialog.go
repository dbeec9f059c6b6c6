package routes

import (
	"ai_chat_relay/internal/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterDialogRoutes 注册对话相关路由
func RegisterDialogRoutes(r *gin.Engine, wsPath string, chatHandler *handlers.ChatHandler, summaryHandler *handlers.SummaryHandler, limit gin.HandlerFunc) {
	// 注册WebSocket路由
	r.GET(wsPath, chatHandler.HandleWebSocket)

	r.POST("/summarize/", limit, summaryHandler.Summarize)
	r.POST("/convert-to-notes/", limit, summaryHandler.ConvertToNotes)
}
