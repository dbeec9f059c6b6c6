package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Transcriber 上传文件转写
type Transcriber interface {
	Transcribe(ctx context.Context, name string, r io.Reader) (string, error)
}

// ASRHandler 音频转写处理器
type ASRHandler struct {
	transcriber Transcriber
}

// NewASRHandler 创建新的 ASR 处理器实例
func NewASRHandler(transcriber Transcriber) *ASRHandler {
	return &ASRHandler{transcriber: transcriber}
}

// Transcribe 处理 POST /transcribe/，表单字段 file
func (h *ASRHandler) Transcribe(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Uploaded file not found."})
		return
	}

	file, err := header.Open()
	if err != nil {
		slog.Error("打开上传文件失败", "file", header.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Transcription failed: " + err.Error()})
		return
	}
	defer file.Close()

	text, err := h.transcriber.Transcribe(c.Request.Context(), header.Filename, file)
	if err != nil {
		slog.Error("语音识别失败", "file", header.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Transcription failed: " + err.Error()})
		return
	}

	slog.Info("语音识别完成", "file", header.Filename, "size", header.Size, "chars", len(text))
	c.JSON(http.StatusOK, gin.H{"transcription": text})
}
