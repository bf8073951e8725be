package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
)

// Pipeline 把一次重排请求拆成可组合的 Node 链：首轮检索 -> 过滤 -> 重排 -> 截断。
type Pipeline struct {
	Nodes  []Node
	Logger *zap.Logger
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if rctx == nil {
		rctx = &core.RequestContext{}
	}
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name(), err)
		}
		logger.Debug("node done",
			zap.String("request_id", rctx.RequestID),
			zap.String("node", node.Name()),
			zap.String("kind", string(node.Kind())),
			zap.Int("in", len(cur)),
			zap.Int("out", len(next)),
			zap.Duration("took", time.Since(start)))
		cur = next
	}
	return cur, nil
}
