package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
)

// TopNNode 是 Top-N 截断节点，通常放在 LTR 重排之后，限制返回结果数量。
//
// 示例：
//
//	p := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &recall.QueryNode{Index: idx, TopN: 500},  // 首轮检索
//	        &rerank.Node{Index: idx, Parser: parser},  // 二阶段打分
//	        &rerank.TopNNode{N: 20},                   // 截取 Top 20
//	    },
//	}
type TopNNode struct {
	// N 要保留的候选数量，<= 0 不截断
	N int
	// Param 非空时优先读取请求参数（如 "rows"）作为 N
	Param string
}

func (n *TopNNode) Name() string        { return "rerank.topn" }
func (n *TopNNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	limit := n.N
	if n.Param != "" && rctx != nil {
		if s, ok := rctx.Params[n.Param]; ok {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return nil, core.BadRequestf(core.ModuleRerank, "%s must be a non-negative integer, got %q", n.Param, s)
			}
			limit = v
		}
	}
	if limit <= 0 || len(items) <= limit {
		return items, nil
	}
	return items[:limit], nil
}
