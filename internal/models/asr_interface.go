package models

import (
	"context"
	"io"
)

// AudioFile 待转写的音频
type AudioFile struct {
	Name   string    // 文件名，决定格式
	Reader io.Reader // 音频内容
}

// Transcriber 语音转文字接口
type Transcriber interface {
	// Transcribe 转写音频并返回文本
	Transcribe(ctx context.Context, audio AudioFile) (string, error)
}
