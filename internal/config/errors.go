package config

import "errors"

// 配置相关错误
var (
	ErrPingPeriod = errors.New("WebSocket心跳间隔必须小于Pong等待时间")
)
