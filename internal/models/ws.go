package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 入站帧错误，Error() 文本即发给客户端的错误内容
var (
	ErrInvalidJSON  = errors.New("Invalid JSON format")
	ErrEmptyMessage = errors.New("Empty message")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// InboundRequest WebSocket入站请求
type InboundRequest struct {
	Model     string        `json:"model,omitempty"`                 // 模型名称，为空时使用默认模型
	Message   string        `json:"message"`                         // 用户消息
	History   []ChatMessage `json:"history,omitempty" validate:"dive"` // 对话历史，由客户端每轮携带
	UseSearch bool          `json:"useSearch,omitempty"`             // 是否启用搜索增强
}

// StreamChunk 出站流式片段
type StreamChunk struct {
	Chunk string `json:"chunk"` // 增量内容
	Done  bool   `json:"done"`  // 是否为结束帧
}

// ErrorFrame 出站错误帧
type ErrorFrame struct {
	Error string `json:"error"`
}

// TerminalChunk 返回一轮对话的结束帧
func TerminalChunk() StreamChunk {
	return StreamChunk{Chunk: "", Done: true}
}

// DecodeInboundRequest 解析并校验入站帧
//
// 解析失败返回 ErrInvalidJSON，消息为空返回 ErrEmptyMessage，
// 历史记录非法返回 *ValidationError。成功时 Message 已去除首尾空白，
// Model 为空时填入 defaultModel。
func DecodeInboundRequest(data []byte, defaultModel string) (InboundRequest, error) {
	var req InboundRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return InboundRequest{}, ErrInvalidJSON
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return InboundRequest{}, ErrEmptyMessage
	}

	if err := validate.Struct(&req); err != nil {
		return InboundRequest{}, &ValidationError{Err: err}
	}

	if strings.TrimSpace(req.Model) == "" {
		req.Model = defaultModel
	}
	return req, nil
}

// Messages 构建发往后端的消息列表：历史记录 + 本轮用户消息
func (r InboundRequest) Messages(content string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(r.History)+1)
	messages = append(messages, r.History...)
	return append(messages, ChatMessage{Role: RoleUser, Content: content})
}

// ValidationError 入站请求字段校验失败
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	var verrs validator.ValidationErrors
	if errors.As(e.Err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid history: field %s failed %q check", fe.Namespace(), fe.Tag())
	}
	return fmt.Sprintf("Invalid history: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
