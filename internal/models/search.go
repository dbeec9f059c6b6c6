package models

import "context"

// MaxSearchResults 单次搜索返回的最大结果数
const MaxSearchResults = 5

// SearchResultItem 单条搜索结果
type SearchResultItem struct {
	Title   string `json:"title"`   // 标题
	Snippet string `json:"snippet"` // 摘要
	Link    string `json:"link"`    // 链接
}

// SearchResponse 搜索结果，按服务返回顺序排列
type SearchResponse struct {
	Items []SearchResultItem `json:"items"`
}

// SearchProvider 搜索服务接口
type SearchProvider interface {
	// Search 执行一次搜索
	Search(ctx context.Context, query string) (SearchResponse, error)
}
