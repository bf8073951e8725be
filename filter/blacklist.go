package filter

import (
	"context"

	"github.com/rushteam/ltrkit/core"
)

// BlacklistFilter 是黑名单过滤器，按文档 ID 过滤。
// 黑名单来自内存列表，以及可选的 KV 存储中的 hash（field 即文档 ID）。
type BlacklistFilter struct {
	IDs   map[string]struct{}
	Store core.KeyValueStore
	Key   string
}

// NewBlacklistFilter 创建一个黑名单过滤器，store 可为 nil。
func NewBlacklistFilter(ids []string, store core.KeyValueStore, key string) *BlacklistFilter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &BlacklistFilter{IDs: set, Store: store, Key: key}
}

func (f *BlacklistFilter) Name() string { return "filter.blacklist" }

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	_ *core.RequestContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.IDs[item.ID]; ok {
		return true, nil
	}
	if f.Store == nil || f.Key == "" {
		return false, nil
	}
	_, err := f.Store.HGet(ctx, f.Key, item.ID)
	switch {
	case err == nil:
		return true, nil
	case core.IsStoreNotFound(err):
		return false, nil
	default:
		return false, err
	}
}
