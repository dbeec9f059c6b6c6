package routes

import (
	"ai_chat_relay/internal/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterASRRoutes 注册语音转写路由
func RegisterASRRoutes(r *gin.Engine, asrHandler *handlers.ASRHandler, limit gin.HandlerFunc) {
	r.POST("/transcribe/", limit, asrHandler.Transcribe)
}
