package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"ai_chat_relay/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoAudio 上传内容为空
var ErrNoAudio = errors.New("音频内容为空")

// WhisperConfig Whisper服务配置，兼容OpenAI的 /audio/transcriptions 接口
type WhisperConfig struct {
	BaseURL string // 例如 http://localhost:8178/v1
	Model   string // 模型名称
	APIKey  string // 本地服务可留空
}

// WhisperClient 调用本地Whisper服务转写音频
type WhisperClient struct {
	config WhisperConfig
	client *openai.Client
}

// NewWhisperClient 创建新的 Whisper 客户端
func NewWhisperClient(config WhisperConfig) *WhisperClient {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL
	clientConfig.HTTPClient = &http.Client{}

	return &WhisperClient{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Transcribe 转写音频并返回文本
func (c *WhisperClient) Transcribe(ctx context.Context, audio models.AudioFile) (string, error) {
	if audio.Reader == nil {
		return "", ErrNoAudio
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.Model,
		FilePath: audio.Name,
		Reader:   audio.Reader,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("语音识别服务返回错误(%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("语音识别请求失败: %w", err)
	}

	slog.Debug("收到识别结果", "file", audio.Name, "chars", len(resp.Text))
	return resp.Text, nil
}
