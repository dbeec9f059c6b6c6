package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ai_chat_relay/internal/models"

	"github.com/ollama/ollama/api"
)

// 后端错误类别
var (
	ErrBackendUnavailable = errors.New("ollama backend unavailable") // 连接失败或服务不可用
	ErrBackendRejected    = errors.New("ollama backend rejected")    // 模型不存在或请求非法
)

// BackendError 对话后端错误，Kind 为 ErrBackendUnavailable 或 ErrBackendRejected
type BackendError struct {
	Kind    error
	Message string // 后端返回的错误描述
	Err     error
}

func (e *BackendError) Error() string {
	return e.Message
}

// Is 支持 errors.Is(err, ErrBackendUnavailable) 形式的判断
func (e *BackendError) Is(target error) bool {
	return target == e.Kind
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Config Ollama客户端配置
type Config struct {
	Host string // Ollama服务器地址（完整URL）
}

// Client Ollama客户端
type Client struct {
	config Config
	api    *api.Client
}

// NewClient 创建新的Ollama客户端
func NewClient(config Config) (*Client, error) {
	if config.Host == "" {
		config.Host = "http://localhost:11434"
	}

	base, err := url.Parse(config.Host)
	if err != nil {
		return nil, fmt.Errorf("无效的Ollama地址: %w", err)
	}

	return &Client{
		config: config,
		api:    api.NewClient(base, &http.Client{}),
	}, nil
}

// Chat 单次对话，返回完整回复
func (c *Client) Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	req := &api.ChatRequest{
		Model:    model,
		Messages: toAPIMessages(messages),
		Stream:   boolPtr(false),
	}

	var content string
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	return content, nil
}

// ChatStream 流式对话
//
// fn 按后端产生的顺序接收每个非空片段；fn 返回的错误原样返回，不做分类。
func (c *Client) ChatStream(ctx context.Context, model string, messages []models.ChatMessage, fn models.FragmentFunc) error {
	req := &api.ChatRequest{
		Model:    model,
		Messages: toAPIMessages(messages),
		Stream:   boolPtr(true),
	}

	var callbackErr error
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		if err := fn(resp.Message.Content); err != nil {
			callbackErr = err
			return err
		}
		return nil
	})
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

// ListModels 列出后端可用模型
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, classify(err)
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping 检查后端是否可达
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.api.Heartbeat(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify 将底层错误归类为 ErrBackendRejected 或 ErrBackendUnavailable
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		kind := ErrBackendRejected
		if statusErr.StatusCode >= http.StatusInternalServerError {
			kind = ErrBackendUnavailable
		}
		return &BackendError{Kind: kind, Message: msg, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &BackendError{Kind: ErrBackendUnavailable, Message: urlErr.Err.Error(), Err: err}
	}

	// 流中途返回的错误（如模型加载失败）
	return &BackendError{Kind: ErrBackendRejected, Message: err.Error(), Err: err}
}

func toAPIMessages(messages []models.ChatMessage) []api.Message {
	out := make([]api.Message, len(messages))
	for i, m := range messages {
		out[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
