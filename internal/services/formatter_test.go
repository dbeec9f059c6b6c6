package services

import (
	"testing"

	"ai_chat_relay/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatSearchResults(t *testing.T) {
	tests := []struct {
		name  string
		items []models.SearchResultItem
		want  string
	}{
		{
			name: "无结果",
			want: "",
		},
		{
			name:  "单条结果",
			items: []models.SearchResultItem{{Title: "T", Snippet: "S", Link: "L"}},
			want:  "T\nS\nL\n",
		},
		{
			name: "多条结果以空行分隔",
			items: []models.SearchResultItem{
				{Title: "Go", Snippet: "A language", Link: "https://go.dev"},
				{Title: "Ollama", Snippet: "Local models", Link: "https://ollama.com"},
			},
			want: "Go\nA language\nhttps://go.dev\n\nOllama\nLocal models\nhttps://ollama.com\n",
		},
		{
			name:  "字段为空时保留占位行",
			items: []models.SearchResultItem{{Title: "T"}},
			want:  "T\n\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSearchResults(models.SearchResponse{Items: tt.items})
			assert.Equal(t, tt.want, got)
		})
	}
}
