package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ai_chat_relay/internal/clients/ollama"
	"ai_chat_relay/internal/services"

	"github.com/gin-gonic/gin"
)

// Summarizer 单次文本处理
type Summarizer interface {
	Summarize(ctx context.Context, req services.SummaryRequest) (string, error)
	ConvertToNotes(ctx context.Context, req services.SummaryRequest) (string, error)
}

// summaryForm 表单参数
type summaryForm struct {
	Text   string `form:"text" binding:"required"`
	Model  string `form:"model"`
	Prompt string `form:"prompt"`
}

// SummaryHandler 摘要和笔记处理器
type SummaryHandler struct {
	summarizer Summarizer
}

// NewSummaryHandler 创建摘要处理器
func NewSummaryHandler(summarizer Summarizer) *SummaryHandler {
	return &SummaryHandler{summarizer: summarizer}
}

// Summarize 处理 POST /summarize/
func (h *SummaryHandler) Summarize(c *gin.Context) {
	h.handle(c, "summary", h.summarizer.Summarize)
}

// ConvertToNotes 处理 POST /convert-to-notes/
func (h *SummaryHandler) ConvertToNotes(c *gin.Context) {
	h.handle(c, "notes", h.summarizer.ConvertToNotes)
}

func (h *SummaryHandler) handle(c *gin.Context, field string, fn func(context.Context, services.SummaryRequest) (string, error)) {
	var form summaryForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Field 'text' is required."})
		return
	}

	result, err := fn(c.Request.Context(), services.SummaryRequest{
		Text:   form.Text,
		Model:  form.Model,
		Prompt: form.Prompt,
	})
	if err != nil {
		var backendErr *ollama.BackendError
		if errors.As(err, &backendErr) {
			slog.Error("Ollama调用失败", "op", field, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Ollama error: " + backendErr.Error()})
			return
		}
		slog.Error("文本处理失败", "op", field, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Summarization failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{field: result})
}
