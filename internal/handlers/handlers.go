package handlers

import (
	"context"
	"net/http"
	"time"

	"ai_chat_relay/internal/config"

	"github.com/gin-gonic/gin"
)

// ModelSource 提供当前可用模型
type ModelSource interface {
	Models() []string
}

// Pinger 检查后端是否可达
type Pinger interface {
	Ping(ctx context.Context) error
}

// InfoHandler 模型列表、前端配置和健康检查
type InfoHandler struct {
	models  ModelSource
	backend Pinger
	config  *config.Config
}

// NewInfoHandler 创建信息处理器
func NewInfoHandler(models ModelSource, backend Pinger, cfg *config.Config) *InfoHandler {
	return &InfoHandler{
		models:  models,
		backend: backend,
		config:  cfg,
	}
}

// Models 处理 GET /models
func (h *InfoHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.models.Models()})
}

// Config 处理 GET /api/config，未配置的凭据返回 null
func (h *InfoHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"googleApiKey":   nullable(h.config.Search.APIKey),
		"searchEngineId": nullable(h.config.Search.EngineID),
		"defaultModel":   h.config.Ollama.DefaultModel,
	})
}

// Health 处理 GET /health
func (h *InfoHandler) Health(c *gin.Context) {
	backend := "up"
	if err := h.backend.Ping(c.Request.Context()); err != nil {
		backend = "down"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"backend": backend,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
