package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ErrNoModels 后端没有返回任何模型
var ErrNoModels = errors.New("backend reported no models")

// ModelLister 可列出模型的后端
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ModelCatalog 可用模型列表
//
// 列表是不可变快照，Refresh 整体替换，读取无需加锁。
type ModelCatalog struct {
	lister   ModelLister
	fallback []string
	current  atomic.Pointer[[]string]
	group    singleflight.Group
}

// NewModelCatalog 创建模型目录，刷新前返回备用列表
func NewModelCatalog(lister ModelLister, fallback []string) *ModelCatalog {
	c := &ModelCatalog{
		lister:   lister,
		fallback: slices.Clone(fallback),
	}
	initial := slices.Clone(fallback)
	c.current.Store(&initial)
	return c
}

// Models 返回当前模型列表的副本
func (c *ModelCatalog) Models() []string {
	return slices.Clone(*c.current.Load())
}

// Refresh 从后端重新获取模型列表
//
// 获取失败或列表为空时换成备用列表，并返回错误。并发调用只会请求后端一次。
func (c *ModelCatalog) Refresh(ctx context.Context) ([]string, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		names, err := c.lister.ListModels(ctx)
		if err == nil && len(names) == 0 {
			err = ErrNoModels
		}
		if err != nil {
			slog.Warn("获取模型列表失败，使用备用列表", "error", err, "fallback", c.fallback)
			names = slices.Clone(c.fallback)
		} else {
			names = slices.Clone(names)
			slog.Info("已加载模型列表", "models", names)
		}
		c.current.Store(&names)
		return names, err
	})
	return slices.Clone(v.([]string)), err
}
