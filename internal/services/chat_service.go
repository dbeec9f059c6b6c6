package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"ai_chat_relay/internal/clients/ollama"
	"ai_chat_relay/internal/clients/search"
	"ai_chat_relay/internal/metrics"
	"ai_chat_relay/internal/models"
	"ai_chat_relay/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ai_chat_relay/internal/services")

// TurnError 一轮对话的失败结果
type TurnError struct {
	Kind types.ErrorKind
	Err  error
}

func (e *TurnError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// FrameMessage 返回发给客户端的错误描述
func (e *TurnError) FrameMessage() string {
	switch e.Kind {
	case types.ErrorKindBackend:
		return "Ollama error: " + e.Err.Error()
	case types.ErrorKindInternal:
		return "Processing error: " + e.Err.Error()
	default:
		return e.Err.Error()
	}
}

// ChunkFunc 发送一个出站片段
type ChunkFunc func(chunk models.StreamChunk) error

// ChatConfig 对话服务配置
type ChatConfig struct {
	DefaultModel string        // 请求未指定模型时使用
	Timeout      time.Duration // 单轮后端调用超时，0表示不限时
}

// ChatService 执行单轮流式对话
type ChatService struct {
	backend models.ChatBackend
	policy  *AugmentationPolicy
	config  ChatConfig
}

// NewChatService 创建新的对话服务
func NewChatService(backend models.ChatBackend, policy *AugmentationPolicy, config ChatConfig) *ChatService {
	return &ChatService{
		backend: backend,
		policy:  policy,
		config:  config,
	}
}

// DefaultModel 返回默认模型名称
func (s *ChatService) DefaultModel() string {
	return s.config.DefaultModel
}

// RunTurn 处理一个入站帧
//
// 成功时按后端顺序发送零个或多个内容片段，最后发送一个结束帧，返回 nil。
// 失败时返回 *TurnError 且不再发送任何帧；Kind 为 ErrorKindTransport
// 表示发送失败或 ctx 已取消，此时不应再向客户端写错误帧。
func (s *ChatService) RunTurn(ctx context.Context, data []byte, emit ChunkFunc) error {
	start := time.Now()

	req, err := models.DecodeInboundRequest(data, s.config.DefaultModel)
	if err != nil {
		return s.finish(start, false, classifyDecode(err))
	}

	ctx, span := tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("model", req.Model),
		attribute.Bool("use_search", req.UseSearch),
		attribute.Int("history.length", len(req.History)),
	))
	defer span.End()

	turnErr := s.stream(ctx, req, emit)
	if turnErr != nil {
		span.RecordError(turnErr.Err)
		span.SetStatus(codes.Error, turnErr.Kind.String())
		return s.finish(start, req.UseSearch, turnErr)
	}
	return s.finish(start, req.UseSearch, nil)
}

func (s *ChatService) stream(ctx context.Context, req models.InboundRequest, emit ChunkFunc) *TurnError {
	prompt, err := s.policy.Select(req.UseSearch).Augment(ctx, req.Message)
	if err != nil {
		return classifyAugment(ctx, err)
	}

	backendCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		backendCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	var sendErr error
	err = s.backend.ChatStream(backendCtx, req.Model, req.Messages(prompt), func(fragment string) error {
		if err := emit(models.StreamChunk{Chunk: fragment}); err != nil {
			sendErr = err
			return err
		}
		metrics.Fragments.Inc()
		return nil
	})
	if sendErr != nil {
		return &TurnError{Kind: types.ErrorKindTransport, Err: sendErr}
	}
	if err != nil {
		return classifyBackend(ctx, err)
	}

	if err := emit(models.TerminalChunk()); err != nil {
		return &TurnError{Kind: types.ErrorKindTransport, Err: err}
	}
	return nil
}

// finish 记录指标，nil 表示成功
func (s *ChatService) finish(start time.Time, augmented bool, turnErr *TurnError) error {
	outcome := "done"
	if turnErr != nil {
		outcome = turnErr.Kind.String()
	}
	metrics.Turns.WithLabelValues(outcome, strconv.FormatBool(augmented)).Inc()
	metrics.TurnDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if turnErr == nil {
		return nil
	}
	return turnErr
}

func classifyDecode(err error) *TurnError {
	if errors.Is(err, models.ErrInvalidJSON) {
		return &TurnError{Kind: types.ErrorKindDecode, Err: err}
	}
	return &TurnError{Kind: types.ErrorKindValidation, Err: err}
}

func classifyAugment(ctx context.Context, err error) *TurnError {
	if ctx.Err() != nil {
		return &TurnError{Kind: types.ErrorKindTransport, Err: ctx.Err()}
	}

	var providerErr *search.ProviderError
	switch {
	case errors.Is(err, search.ErrNotConfigured):
		return &TurnError{Kind: types.ErrorKindConfig, Err: err}
	case errors.As(err, &providerErr), errors.Is(err, context.DeadlineExceeded):
		return &TurnError{Kind: types.ErrorKindProvider, Err: err}
	default:
		return &TurnError{Kind: types.ErrorKindInternal, Err: err}
	}
}

func classifyBackend(ctx context.Context, err error) *TurnError {
	if ctx.Err() != nil {
		return &TurnError{Kind: types.ErrorKindTransport, Err: ctx.Err()}
	}

	switch {
	case errors.Is(err, ollama.ErrBackendUnavailable), errors.Is(err, ollama.ErrBackendRejected):
		return &TurnError{Kind: types.ErrorKindBackend, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		// 单轮超时，连接仍然有效
		return &TurnError{Kind: types.ErrorKindBackend, Err: errors.New("request timed out")}
	default:
		return &TurnError{Kind: types.ErrorKindInternal, Err: err}
	}
}
