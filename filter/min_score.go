package filter

import (
	"context"

	"github.com/rushteam/ltrkit/core"
)

// MinScoreFilter 过滤首轮分数低于 Min 的候选
type MinScoreFilter struct {
	Min float64
}

func (f *MinScoreFilter) Name() string { return "filter.min_score" }

func (f *MinScoreFilter) ShouldFilter(_ context.Context, _ *core.RequestContext, item *core.Item) (bool, error) {
	return item == nil || item.OriginalScore < f.Min, nil
}
