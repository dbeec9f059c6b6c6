package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"ai_chat_relay/internal/config"
	"ai_chat_relay/internal/metrics"
	"ai_chat_relay/internal/models"
	"ai_chat_relay/internal/services"
	"ai_chat_relay/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TurnRunner 执行单轮对话
type TurnRunner interface {
	RunTurn(ctx context.Context, data []byte, emit services.ChunkFunc) error
}

// ChatHandler 流式对话WebSocket处理器
type ChatHandler struct {
	runner   TurnRunner
	config   config.WebSocketConfig
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewChatHandler 创建对话处理器，握手时按 cors 的来源列表检查 Origin
func NewChatHandler(runner TurnRunner, cfg config.WebSocketConfig, cors config.CORSConfig) *ChatHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatHandler{
		runner: runner,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(cors.Origins),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// originChecker 没有Origin头的请求不是浏览器发起的，直接放行
func originChecker(origins []string) func(r *http.Request) bool {
	allowAll := slices.Contains(origins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowAll || slices.Contains(origins, origin)
	}
}

// HandleWebSocket 处理WebSocket连接，连接结束前不返回
func (h *ChatHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("升级WebSocket连接失败", "remote", c.ClientIP(), "error", err)
		return
	}

	id := uuid.NewString()
	session := &chatSession{
		id:     id,
		conn:   conn,
		config: h.config,
		log:    slog.With("session", id, "remote", c.ClientIP()),
	}
	session.run(h.ctx, h.runner)
}

// Close 取消所有会话
//
// 被劫持的连接不受 http.Server.Shutdown 管理，需要单独关闭。
func (h *ChatHandler) Close() {
	h.cancel()
}

// chatSession 单个WebSocket连接
//
// 只有对话循环所在的goroutine写数据帧；心跳使用可并发调用的 WriteControl。
type chatSession struct {
	id        string
	conn      *websocket.Conn
	config    config.WebSocketConfig
	log       *slog.Logger
	state     types.SessionState
	closeOnce sync.Once
}

func (s *chatSession) run(parent context.Context, runner TurnRunner) {
	ctx, cancel := context.WithCancel(parent)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer s.close()
	defer cancel()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	s.log.Info("WebSocket会话建立")
	defer s.log.Info("WebSocket会话结束")

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	queue := newFrameQueue()
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(cancel, queue)
	}()
	go func() {
		defer wg.Done()
		s.pingLoop(ctx, cancel)
	}()

	for {
		s.setState(types.SessionStateOpen)

		data, ok := queue.pop(ctx)
		if !ok {
			return
		}

		s.setState(types.SessionStateReceivingTurn)
		err := runner.RunTurn(ctx, data, s.sendChunk)
		if err == nil {
			continue
		}

		var turnErr *services.TurnError
		if !errors.As(err, &turnErr) {
			turnErr = &services.TurnError{Kind: types.ErrorKindInternal, Err: err}
		}

		if !turnErr.Kind.IsBusiness() {
			s.log.Debug("连接已断开，结束会话", "error", turnErr.Err)
			return
		}

		s.setState(types.SessionStateError)
		s.log.Warn("对话处理失败", "kind", turnErr.Kind.String(), "error", turnErr.Err)
		if err := s.writeJSON(models.ErrorFrame{Error: turnErr.FrameMessage()}); err != nil {
			s.log.Debug("发送错误帧失败", "error", err)
			return
		}
	}
}

// readLoop 持续读取入站帧并排队，对话进行中也不停止读取，以便及时发现断开
func (s *chatSession) readLoop(cancel context.CancelFunc, queue *frameQueue) {
	defer cancel()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Warn("读取WebSocket消息失败", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.log.Debug("忽略非文本帧", "type", messageType)
			continue
		}

		s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
		if !queue.push(data) {
			s.log.Warn("待处理消息过多，关闭连接", "limit", maxPendingFrames)
			return
		}
	}
}

// maxPendingFrames 对话进行中最多排队的入站帧
const maxPendingFrames = 32

// frameQueue 入站帧队列，读循环写入，对话循环按顺序取出
type frameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	ready  chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{ready: make(chan struct{}, 1)}
}

// push 入队，队列已满时返回false
func (q *frameQueue) push(data []byte) bool {
	q.mu.Lock()
	if len(q.frames) >= maxPendingFrames {
		q.mu.Unlock()
		return false
	}
	q.frames = append(q.frames, data)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop 取出最早的一帧，ctx 结束时返回false
func (q *frameQueue) pop(ctx context.Context) ([]byte, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}

		q.mu.Lock()
		if len(q.frames) > 0 {
			data := q.frames[0]
			q.frames[0] = nil
			q.frames = q.frames[1:]
			q.mu.Unlock()
			return data, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.ready:
		}
	}
}

// pingLoop 定期发送Ping
func (s *chatSession) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug("发送心跳失败", "error", err)
				cancel()
				return
			}
		}
	}
}

func (s *chatSession) sendChunk(chunk models.StreamChunk) error {
	if !chunk.Done {
		s.setState(types.SessionStateStreaming)
	}
	return s.writeJSON(chunk)
}

func (s *chatSession) writeJSON(v any) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
	return s.conn.WriteJSON(v)
}

func (s *chatSession) setState(state types.SessionState) {
	if s.state == state {
		return
	}
	s.log.Debug("会话状态变更", "from", s.state.String(), "to", state.String())
	s.state = state
}

// close 关闭连接，只执行一次
func (s *chatSession) close() {
	s.closeOnce.Do(func() {
		s.setState(types.SessionStateClosed)
		deadline := time.Now().Add(s.config.WriteWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("关闭连接失败", "error", err)
		}
	})
}
