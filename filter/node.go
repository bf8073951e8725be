package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/pkg/utils"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该候选就会被过滤掉；剩余候选保持原顺序。
type FilterNode struct {
	Filters []Filter
	Logger  *zap.Logger
}

func (n *FilterNode) Name() string        { return "filter.node" }
func (n *FilterNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}
	logger := n.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		reason := ""
		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				// 过滤器错误时记录但不中断流程
				logger.Debug("filter error, keeping item",
					zap.String("filter", f.Name()),
					zap.String("item", item.ID),
					zap.Error(err))
				continue
			}
			if ok {
				reason = f.Name()
				break
			}
		}
		if reason != "" {
			item.PutLabel("filtered", utils.Label{Value: "true", Source: reason})
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
