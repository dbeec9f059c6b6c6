package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ai_chat_relay/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// 默认提示词，正文直接拼接在后面
const (
	DefaultSummaryPrompt = "Please summarize this text concisely:\n\n"
	DefaultNotesPrompt   = "Convert the following text into well-organized notes with headings and bullet points:\n\n"
)

// ErrMissingText 待处理文本为空
var ErrMissingText = errors.New("text is required")

// SummaryRequest 摘要请求
type SummaryRequest struct {
	Text   string
	Model  string // 为空时使用默认模型
	Prompt string // 为空时使用对应操作的默认提示词
}

// SummaryService 单次（非流式）文本处理
type SummaryService struct {
	backend      models.ChatBackend
	defaultModel string
	timeout      time.Duration
}

// NewSummaryService 创建新的摘要服务
func NewSummaryService(backend models.ChatBackend, defaultModel string, timeout time.Duration) *SummaryService {
	return &SummaryService{
		backend:      backend,
		defaultModel: defaultModel,
		timeout:      timeout,
	}
}

// Summarize 生成摘要
func (s *SummaryService) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	return s.complete(ctx, "summarize", req, DefaultSummaryPrompt)
}

// ConvertToNotes 将文本整理为笔记
func (s *SummaryService) ConvertToNotes(ctx context.Context, req SummaryRequest) (string, error) {
	return s.complete(ctx, "convert_to_notes", req, DefaultNotesPrompt)
}

func (s *SummaryService) complete(ctx context.Context, op string, req SummaryRequest, defaultPrompt string) (string, error) {
	if req.Text == "" {
		return "", ErrMissingText
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	if req.Prompt == "" {
		req.Prompt = defaultPrompt
	}

	ctx, span := tracer.Start(ctx, "summary."+op, trace.WithAttributes(
		attribute.String("model", req.Model),
		attribute.Int("text.length", len(req.Text)),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	content, err := s.backend.Chat(ctx, req.Model, []models.ChatMessage{
		{Role: models.RoleUser, Content: req.Prompt + req.Text},
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	slog.Debug("文本处理完成", "op", op, "model", req.Model, "chars", len(content))
	return content, nil
}
