// Package metrics 定义Prometheus指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_chat_relay"

var (
	// ActiveSessions 当前WebSocket会话数
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_active_sessions",
		Help:      "Number of open chat WebSocket sessions.",
	})

	// Turns 对话轮次，按结果分类（done 或错误类别）
	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Chat turns by outcome.",
	}, []string{"outcome", "augmented"})

	// Fragments 转发给客户端的流式片段数
	Fragments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fragments_total",
		Help:      "Streamed fragments forwarded to clients.",
	})

	// TurnDuration 单轮对话耗时
	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Duration of chat turns.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})

	// SearchRequests 搜索请求数，按结果分类
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_requests_total",
		Help:      "Web search requests by result.",
	}, []string{"result"})

	// HTTPRequests HTTP请求数
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration HTTP请求耗时
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// RateLimited 被限流拒绝的请求数
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)
