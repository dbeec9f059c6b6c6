// Package types 定义基本类型
package types

// SessionState 会话状态
type SessionState int

// 定义会话状态常量
const (
	SessionStateOpen SessionState = iota
	SessionStateReceivingTurn
	SessionStateStreaming
	SessionStateError
	SessionStateClosed
)

// String 返回会话状态名称
func (s SessionState) String() string {
	switch s {
	case SessionStateOpen:
		return "open"
	case SessionStateReceivingTurn:
		return "receiving_turn"
	case SessionStateStreaming:
		return "streaming"
	case SessionStateError:
		return "error"
	case SessionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrorKind 一轮对话中的错误类别
type ErrorKind int

// 定义错误类别常量
const (
	ErrorKindDecode     ErrorKind = iota // 入站帧无法解析
	ErrorKindValidation                  // 消息为空或历史记录非法
	ErrorKindConfig                      // 搜索凭据缺失
	ErrorKindProvider                    // 搜索服务请求失败
	ErrorKindBackend                     // 对话后端失败
	ErrorKindTransport                   // 连接层失败，不向客户端发送错误帧
	ErrorKindInternal                    // 其他未预期错误
)

// String 返回错误类别名称
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindDecode:
		return "decode"
	case ErrorKindValidation:
		return "validation"
	case ErrorKindConfig:
		return "config"
	case ErrorKindProvider:
		return "provider"
	case ErrorKindBackend:
		return "backend"
	case ErrorKindTransport:
		return "transport"
	case ErrorKindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// IsBusiness 是否为业务错误（转换为错误帧，连接保持）
func (k ErrorKind) IsBusiness() bool {
	return k != ErrorKindTransport
}
