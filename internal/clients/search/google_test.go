package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ai_chat_relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleClient_NotConfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	tests := []struct {
		name   string
		config Config
	}{
		{name: "缺少API密钥", config: Config{EngineID: "cx", Endpoint: server.URL + "/"}},
		{name: "缺少搜索引擎ID", config: Config{APIKey: "key", Endpoint: server.URL + "/"}},
		{name: "全部缺失", config: Config{Endpoint: server.URL + "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewGoogleClient(tt.config)
			_, err := client.Search(context.Background(), "weather today")
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
	assert.Zero(t, calls.Load(), "凭据缺失时不应发起网络请求")
}

func TestGoogleClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("key"))
		assert.Equal(t, "cx", q.Get("cx"))
		assert.Equal(t, "weather today", q.Get("q"))
		assert.Equal(t, "5", q.Get("num"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"title":"Forecast","snippet":"Sunny, 21C","link":"https://example.com/forecast"},
			{"title":"Radar","snippet":"No rain expected","link":"https://example.com/radar"}
		]}`))
	}))
	defer server.Close()

	client := NewGoogleClient(Config{APIKey: "key", EngineID: "cx", Endpoint: server.URL + "/"})
	resp, err := client.Search(context.Background(), "weather today")

	require.NoError(t, err)
	assert.Equal(t, []models.SearchResultItem{
		{Title: "Forecast", Snippet: "Sunny, 21C", Link: "https://example.com/forecast"},
		{Title: "Radar", Snippet: "No rain expected", Link: "https://example.com/radar"},
	}, resp.Items)
}

func TestGoogleClient_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	}))
	defer server.Close()

	client := NewGoogleClient(Config{APIKey: "key", EngineID: "cx", Endpoint: server.URL + "/"})
	resp, err := client.Search(context.Background(), "nothing")

	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestGoogleClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	client := NewGoogleClient(Config{APIKey: "bad", EngineID: "cx", Endpoint: server.URL + "/"})
	_, err := client.Search(context.Background(), "weather today")

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusForbidden, providerErr.StatusCode)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGoogleClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL + "/"
	server.Close()

	client := NewGoogleClient(Config{APIKey: "key", EngineID: "cx", Endpoint: endpoint})
	_, err := client.Search(context.Background(), "weather today")

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Zero(t, providerErr.StatusCode)
}
