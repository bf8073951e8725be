package rerank

import (
	"context"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
)

// Diversity 限制同一分组在结果中的数量，在 LTR 重排之后使用。
// 分组值来源优先级：
// - label[Key].Value
// - meta[Key] (string)，recall.QueryNode 可通过 Fields 把文档字段写入 meta
//
// 超出 MaxPerGroup 的候选默认降到末尾（保持相对顺序），Drop 为 true 时直接丢弃。
type Diversity struct {
	Key         string // 默认 "category"
	MaxPerGroup int    // 默认 1
	Drop        bool
}

func (n *Diversity) Name() string        { return "rerank.diversity" }
func (n *Diversity) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	key := n.Key
	if key == "" {
		key = "category"
	}
	limit := n.MaxPerGroup
	if limit <= 0 {
		limit = 1
	}

	seen := make(map[string]int, 32)
	out := make([]*core.Item, 0, len(items))
	var demoted []*core.Item
	for _, it := range items {
		if it == nil {
			continue
		}
		group := groupOf(it, key)
		if group == "" {
			out = append(out, it)
			continue
		}
		if seen[group] >= limit {
			if !n.Drop {
				demoted = append(demoted, it)
			}
			continue
		}
		seen[group]++
		out = append(out, it)
	}
	return append(out, demoted...), nil
}

func groupOf(it *core.Item, key string) string {
	if lbl, ok := it.Labels[key]; ok && lbl.Value != "" {
		return lbl.Value
	}
	if s, ok := it.Meta[key].(string); ok {
		return s
	}
	return ""
}
