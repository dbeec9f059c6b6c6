package routes

import (
	"ai_chat_relay/internal/config"
	"ai_chat_relay/internal/handlers"
	"ai_chat_relay/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 所有路由处理器
type Handlers struct {
	Chat    *handlers.ChatHandler
	ASR     *handlers.ASRHandler
	Summary *handlers.SummaryHandler
	Info    *handlers.InfoHandler
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, cfg *config.Config, h Handlers) {
	r.GET("/health", h.Info.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/models", h.Info.Models)
	r.GET("/api/config", h.Info.Config)

	// 转写和摘要接口共用一个限流器
	limit := middleware.RateLimit(cfg.RateLimit)

	// 注册ASR路由
	RegisterASRRoutes(r, h.ASR, limit)

	// 注册对话路由
	RegisterDialogRoutes(r, cfg.WebSocket.Path, h.Chat, h.Summary, limit)
}
