package services

import (
	"strings"

	"ai_chat_relay/internal/models"
)

// FormatSearchResults 将搜索结果格式化为提示词文本
//
// 每条结果输出为 "标题\n摘要\n链接\n"，结果之间以空行分隔；没有结果时返回空字符串。
func FormatSearchResults(resp models.SearchResponse) string {
	if len(resp.Items) == 0 {
		return ""
	}

	entries := make([]string, len(resp.Items))
	for i, item := range resp.Items {
		entries[i] = item.Title + "\n" + item.Snippet + "\n" + item.Link + "\n"
	}
	return strings.Join(entries, "\n")
}
