package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptionService_Audio(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hello"}
	svc := NewTranscriptionService(transcriber, 0)

	got, err := svc.Transcribe(context.Background(), "note.mp3", strings.NewReader("ID3..."))
	require.NoError(t, err)

	assert.Equal(t, "hello", got)
	assert.Equal(t, "note.mp3", transcriber.name)
	assert.Equal(t, "ID3...", string(transcriber.data))
}

func TestTranscriptionService_BadCapture(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hello"}
	svc := NewTranscriptionService(transcriber, 0)

	_, err := svc.Transcribe(context.Background(), "call.pcap", strings.NewReader("definitely not a capture"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "解析抓包文件失败")
	assert.Zero(t, transcriber.calls)
}
