package services

import (
	"context"
	"io"
	"sync"

	"ai_chat_relay/internal/models"
)

// fakeBackend 按预设片段回放的对话后端
type fakeBackend struct {
	mu        sync.Mutex
	fragments []string
	reply     string
	models    []string
	err       error
	calls     int
	model     string
	messages  []models.ChatMessage
}

func (b *fakeBackend) record(model string, messages []models.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.model = model
	b.messages = append([]models.ChatMessage(nil), messages...)
}

func (b *fakeBackend) Chat(_ context.Context, model string, messages []models.ChatMessage) (string, error) {
	b.record(model, messages)
	if b.err != nil {
		return "", b.err
	}
	return b.reply, nil
}

func (b *fakeBackend) ChatStream(ctx context.Context, model string, messages []models.ChatMessage, fn models.FragmentFunc) error {
	b.record(model, messages)
	for _, f := range b.fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return b.err
}

func (b *fakeBackend) ListModels(context.Context) ([]string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.models, b.err
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// fakeSearch 返回预设结果的搜索服务
type fakeSearch struct {
	resp  models.SearchResponse
	err   error
	calls int
	query string
}

func (s *fakeSearch) Search(_ context.Context, query string) (models.SearchResponse, error) {
	s.calls++
	s.query = query
	return s.resp, s.err
}

// fakeTranscriber 记录收到的音频
type fakeTranscriber struct {
	text  string
	err   error
	calls int
	name  string
	data  []byte
}

func (t *fakeTranscriber) Transcribe(_ context.Context, audio models.AudioFile) (string, error) {
	t.calls++
	t.name = audio.Name
	t.data, _ = io.ReadAll(audio.Reader)
	return t.text, t.err
}
