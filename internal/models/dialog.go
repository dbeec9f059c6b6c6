package models

import "context"

// Role 消息角色
type Role string

// 定义消息角色常量
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage 对话消息，创建后不再修改
type ChatMessage struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant system"` // 消息角色：user/assistant/system
	Content string `json:"content"`                                              // 消息内容
}

// FragmentFunc 流式片段回调，返回错误时终止流
type FragmentFunc func(fragment string) error

// ChatBackend 对话后端接口
type ChatBackend interface {
	// Chat 单次对话，返回完整回复
	Chat(ctx context.Context, model string, messages []ChatMessage) (string, error)

	// ChatStream 流式对话，按顺序回调每个非空片段
	ChatStream(ctx context.Context, model string, messages []ChatMessage, fn FragmentFunc) error

	// ListModels 列出后端可用模型
	ListModels(ctx context.Context) ([]string, error)
}
