package services

import (
	"context"
	"time"

	"ai_chat_relay/internal/metrics"
	"ai_chat_relay/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SearchInstruction 搜索增强提示词的固定前缀
const SearchInstruction = "merge and organize the search response into consolidated, bullet-pointed results, listing sources if available."

// Augmenter 改写用户消息的策略
type Augmenter interface {
	// Augment 返回发往后端的消息内容
	Augment(ctx context.Context, message string) (string, error)
}

// PassThrough 原样转发
type PassThrough struct{}

// Augment 返回原始消息
func (PassThrough) Augment(_ context.Context, message string) (string, error) {
	return message, nil
}

// SearchAugmenter 用搜索结果替换用户消息
type SearchAugmenter struct {
	provider models.SearchProvider
	timeout  time.Duration
}

// NewSearchAugmenter 创建搜索增强策略，timeout 为0表示不限时
func NewSearchAugmenter(provider models.SearchProvider, timeout time.Duration) *SearchAugmenter {
	return &SearchAugmenter{provider: provider, timeout: timeout}
}

// Augment 以用户消息为关键词搜索，返回 指令 + 空行 + 格式化结果
//
// 搜索失败时直接返回错误，不回退为原始消息。
func (a *SearchAugmenter) Augment(ctx context.Context, message string) (string, error) {
	ctx, span := tracer.Start(ctx, "search.augment", trace.WithAttributes(
		attribute.Int("query.length", len(message)),
	))
	defer span.End()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.provider.Search(ctx, message)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("results", len(resp.Items)))

	return SearchInstruction + "\n\n" + FormatSearchResults(resp), nil
}

// AugmentationPolicy 根据请求选择改写策略
type AugmentationPolicy struct {
	plain  Augmenter
	search Augmenter
}

// NewAugmentationPolicy 创建策略选择器
func NewAugmentationPolicy(search Augmenter) *AugmentationPolicy {
	return &AugmentationPolicy{
		plain:  PassThrough{},
		search: search,
	}
}

// Select 返回本轮使用的策略
func (p *AugmentationPolicy) Select(useSearch bool) Augmenter {
	if useSearch {
		return p.search
	}
	return p.plain
}
