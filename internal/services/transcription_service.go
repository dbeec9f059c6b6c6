package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"ai_chat_relay/internal/models"
	"ai_chat_relay/internal/utils"
)

// TranscriptionService 音频转写服务
type TranscriptionService struct {
	transcriber models.Transcriber
	timeout     time.Duration
}

// NewTranscriptionService 创建新的转写服务
func NewTranscriptionService(transcriber models.Transcriber, timeout time.Duration) *TranscriptionService {
	return &TranscriptionService{
		transcriber: transcriber,
		timeout:     timeout,
	}
}

// Transcribe 转写上传的文件
//
// 抓包文件（.pcap/.pcapng/.cap）先提取其中的G.711 RTP音频并转换为WAV。
func (s *TranscriptionService) Transcribe(ctx context.Context, name string, r io.Reader) (string, error) {
	if utils.IsCaptureFile(name) {
		wav, err := utils.ExtractWAV(r)
		if err != nil {
			return "", fmt.Errorf("解析抓包文件失败: %w", err)
		}
		slog.Debug("已从抓包中提取音频", "file", name, "bytes", len(wav))
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".wav"
		r = bytes.NewReader(wav)
	}

	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.transcriber.Transcribe(ctx, models.AudioFile{Name: name, Reader: r})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}
