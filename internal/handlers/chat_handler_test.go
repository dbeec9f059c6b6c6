package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai_chat_relay/internal/clients/ollama"
	"ai_chat_relay/internal/clients/search"
	"ai_chat_relay/internal/config"
	"ai_chat_relay/internal/models"
	"ai_chat_relay/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend 按预设片段回放的对话后端
type scriptedBackend struct {
	fragments []string
	err       error
	calls     atomic.Int32

	mu       sync.Mutex
	messages []models.ChatMessage
}

func (b *scriptedBackend) Chat(context.Context, string, []models.ChatMessage) (string, error) {
	return "", nil
}

func (b *scriptedBackend) ChatStream(ctx context.Context, _ string, messages []models.ChatMessage, fn models.FragmentFunc) error {
	b.calls.Add(1)
	b.mu.Lock()
	b.messages = messages
	fragments, err := b.fragments, b.err
	b.mu.Unlock()

	for _, f := range fragments {
		if err := fn(f); err != nil {
			return err
		}
	}
	return err
}

func (b *scriptedBackend) script(fragments []string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = fragments
	b.err = err
}

func (b *scriptedBackend) ListModels(context.Context) ([]string, error) {
	return nil, nil
}

// blockingBackend 发送一个片段后阻塞，直到请求被取消
type blockingBackend struct {
	scriptedBackend
	cancelled chan struct{}
}

func (b *blockingBackend) ChatStream(ctx context.Context, _ string, _ []models.ChatMessage, fn models.FragmentFunc) error {
	if err := fn("first"); err != nil {
		return err
	}
	<-ctx.Done()
	close(b.cancelled)
	return ctx.Err()
}

type stubSearch struct {
	resp models.SearchResponse
}

func (s stubSearch) Search(context.Context, string) (models.SearchResponse, error) {
	return s.resp, nil
}

func dialChat(t *testing.T, backend models.ChatBackend, provider models.SearchProvider, mutate ...func(*config.WebSocketConfig)) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	wsConfig := config.Default().WebSocket
	for _, fn := range mutate {
		fn(&wsConfig)
	}

	policy := services.NewAugmentationPolicy(services.NewSearchAugmenter(provider, time.Second))
	chat := services.NewChatService(backend, policy, services.ChatConfig{
		DefaultModel: "llama3:8b",
		Timeout:      5 * time.Second,
	})
	handler := NewChatHandler(chat, wsConfig, config.Default().CORS)

	r := gin.New()
	r.GET("/chat", handler.HandleWebSocket)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	t.Cleanup(handler.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestChat_StreamsFragmentsInOrder(t *testing.T) {
	backend := &scriptedBackend{fragments: []string{"Hel", "lo"}}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	send(t, conn, `{"message":"hi","useSearch":false}`)

	assert.JSONEq(t, `{"chunk":"Hel","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"lo","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
}

func TestChat_DefaultModelScenario(t *testing.T) {
	backend := &scriptedBackend{fragments: []string{"H", "i"}}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	send(t, conn, `{"message":"hi","useSearch":false}`)

	assert.JSONEq(t, `{"chunk":"H","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"i","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
}

func TestChat_SequentialTurns(t *testing.T) {
	backend := &scriptedBackend{fragments: []string{"ok"}}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	for i := 0; i < 3; i++ {
		send(t, conn, `{"message":"again"}`)
		assert.JSONEq(t, `{"chunk":"ok","done":false}`, readFrame(t, conn))
		assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
	}
	assert.Equal(t, int32(3), backend.calls.Load())
}

func TestChat_BusinessErrorsKeepConnectionOpen(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantFrame string
	}{
		{
			name:      "非法JSON",
			frame:     `not json`,
			wantFrame: `{"error":"Invalid JSON format"}`,
		},
		{
			name:      "空消息",
			frame:     `{"message":""}`,
			wantFrame: `{"error":"Empty message"}`,
		},
		{
			name:      "全空白消息",
			frame:     `{"message":"   "}`,
			wantFrame: `{"error":"Empty message"}`,
		},
		{
			name:      "未配置搜索凭据",
			frame:     `{"message":"hi","useSearch":true}`,
			wantFrame: `{"error":"Google API key and search engine ID must be set"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &scriptedBackend{fragments: []string{"ok"}}
			conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

			send(t, conn, tt.frame)
			assert.JSONEq(t, tt.wantFrame, readFrame(t, conn))
			assert.Zero(t, backend.calls.Load())

			// 下一轮正常处理，说明错误轮次只发送了一帧且连接仍然可用
			send(t, conn, `{"message":"still there?"}`)
			assert.JSONEq(t, `{"chunk":"ok","done":false}`, readFrame(t, conn))
			assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
		})
	}
}

func TestChat_BackendError(t *testing.T) {
	backend := &scriptedBackend{err: &ollama.BackendError{
		Kind:    ollama.ErrBackendRejected,
		Message: `model "nope" not found, try pulling it first`,
	}}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	send(t, conn, `{"model":"nope","message":"hi"}`)
	assert.JSONEq(t, `{"error":"Ollama error: model \"nope\" not found, try pulling it first"}`, readFrame(t, conn))

	backend.script([]string{"recovered"}, nil)
	send(t, conn, `{"message":"hi"}`)
	assert.JSONEq(t, `{"chunk":"recovered","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
}

func TestChat_SearchAugmented(t *testing.T) {
	backend := &scriptedBackend{fragments: []string{"- result"}}
	provider := stubSearch{resp: models.SearchResponse{Items: []models.SearchResultItem{
		{Title: "T", Snippet: "S", Link: "L"},
	}}}
	conn := dialChat(t, backend, provider)

	send(t, conn, `{"message":"what is new","useSearch":true}`)
	assert.JSONEq(t, `{"chunk":"- result","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.messages, 1)
	assert.Equal(t, services.SearchInstruction+"\n\nT\nS\nL\n", backend.messages[0].Content)
}

func TestChat_DisconnectCancelsTurn(t *testing.T) {
	backend := &blockingBackend{cancelled: make(chan struct{})}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	send(t, conn, `{"message":"long answer please"}`)
	assert.JSONEq(t, `{"chunk":"first","done":false}`, readFrame(t, conn))

	require.NoError(t, conn.Close())

	select {
	case <-backend.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("断开连接后后端请求未被取消")
	}
}

func TestChat_DisconnectWithQueuedFrameCancelsTurn(t *testing.T) {
	backend := &blockingBackend{cancelled: make(chan struct{})}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	send(t, conn, `{"message":"long answer please"}`)
	assert.JSONEq(t, `{"chunk":"first","done":false}`, readFrame(t, conn))

	// 第二帧在第一轮进行中到达，之后客户端断开
	send(t, conn, `{"message":"next question"}`)
	require.NoError(t, conn.Close())

	start := time.Now()
	select {
	case <-backend.cancelled:
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("排队消息存在时断开连接，后端请求未被取消")
	}
}

func TestChat_QueuedFramesRunInOrder(t *testing.T) {
	backend := &scriptedBackend{fragments: []string{"ok"}}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}))

	send(t, conn, `{"message":"one"}`)
	send(t, conn, `{"message":""}`)
	send(t, conn, `{"message":"three"}`)

	assert.JSONEq(t, `{"chunk":"ok","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
	assert.JSONEq(t, `{"error":"Empty message"}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"ok","done":false}`, readFrame(t, conn))
	assert.JSONEq(t, `{"chunk":"","done":true}`, readFrame(t, conn))
	assert.Equal(t, int32(2), backend.calls.Load())
}

func TestChat_CheckOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewChatHandler(&nopRunner{}, config.Default().WebSocket, config.CORSConfig{
		Origins: []string{"http://localhost:5173"},
	})
	r := gin.New()
	r.GET("/chat", handler.HandleWebSocket)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	t.Cleanup(handler.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat"
	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{name: "允许的来源", origin: "http://localhost:5173"},
		{name: "非浏览器客户端", origin: ""},
		{name: "其他来源", origin: "http://evil.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.wantErr {
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			conn.Close()
		})
	}
}

// nopRunner 不做任何处理的对话执行器
type nopRunner struct{}

func (nopRunner) RunTurn(context.Context, []byte, services.ChunkFunc) error { return nil }

func TestChat_Keepalive(t *testing.T) {
	backend := &scriptedBackend{}
	conn := dialChat(t, backend, search.NewGoogleClient(search.Config{}), func(c *config.WebSocketConfig) {
		c.PingPeriod = 20 * time.Millisecond
		c.PongWait = time.Second
	})

	var pings atomic.Int32
	conn.SetPingHandler(func(string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second))
	})

	// 控制帧只在读取时处理
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	assert.Positive(t, pings.Load())
}
