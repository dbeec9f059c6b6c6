// Package search 封装Google自定义搜索接口
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ai_chat_relay/internal/models"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrNotConfigured 搜索凭据缺失
var ErrNotConfigured = errors.New("Google API key and search engine ID must be set")

// ProviderError 搜索请求失败，StatusCode 为0表示传输层错误
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("search request failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Config 搜索客户端配置
type Config struct {
	APIKey   string // API密钥
	EngineID string // 搜索引擎ID（cx）
	Endpoint string // 接口地址，为空时使用官方地址
}

// GoogleClient Google自定义搜索客户端
type GoogleClient struct {
	config Config
}

// NewGoogleClient 创建搜索客户端，凭据在每次搜索时检查
func NewGoogleClient(config Config) *GoogleClient {
	return &GoogleClient{config: config}
}

// Configured 凭据是否齐全
func (c *GoogleClient) Configured() bool {
	return c.config.APIKey != "" && c.config.EngineID != ""
}

// Search 执行一次搜索，最多返回 models.MaxSearchResults 条结果
func (c *GoogleClient) Search(ctx context.Context, query string) (models.SearchResponse, error) {
	if !c.Configured() {
		return models.SearchResponse{}, ErrNotConfigured
	}

	opts := []option.ClientOption{option.WithAPIKey(c.config.APIKey)}
	if c.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.config.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return models.SearchResponse{}, &ProviderError{Err: err}
	}

	slog.Debug("执行搜索", "query", query, "num", models.MaxSearchResults)
	result, err := svc.Cse.List().
		Cx(c.config.EngineID).
		Q(query).
		Num(models.MaxSearchResults).
		Context(ctx).
		Do()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.SearchResponse{}, err
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return models.SearchResponse{}, &ProviderError{StatusCode: apiErr.Code, Err: err}
		}
		return models.SearchResponse{}, &ProviderError{Err: err}
	}

	resp := models.SearchResponse{Items: make([]models.SearchResultItem, 0, len(result.Items))}
	for _, item := range result.Items {
		if len(resp.Items) == models.MaxSearchResults {
			break
		}
		resp.Items = append(resp.Items, models.SearchResultItem{
			Title:   item.Title,
			Snippet: item.Snippet,
			Link:    item.Link,
		})
	}
	slog.Debug("搜索完成", "query", query, "items", len(resp.Items))
	return resp, nil
}
