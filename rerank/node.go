package rerank

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/pkg/utils"
	"github.com/rushteam/ltrkit/recall"
	"github.com/rushteam/ltrkit/search"
)

// Node 是 LTR 重排节点：对首轮节点产出的候选执行二阶段打分。
// 请求参数（model / reRankDocs / fs / efi.*）取自 RequestContext.Params。
//
// 输入候选须按首轮分数降序，且来自与 Index 当前视图相同版本的 Reader。
type Node struct {
	Index        *search.Index
	Parser       *Parser
	DefaultField string
	// Param 是首轮查询串的请求参数名，默认 "q"；缺失时使用候选 Meta 中记录的查询
	Param string
}

func (n *Node) Name() string        { return "rerank.ltr" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Node) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	if rctx == nil {
		rctx = &core.RequestContext{}
	}
	reader := n.Index.Reader()
	for _, it := range items {
		if v, ok := it.Meta[recall.MetaReaderVersion].(uint64); ok && v != reader.Version() {
			return nil, core.NewDomainError(core.ModuleRerank, core.ErrorCodeUnavailable,
				fmt.Sprintf("index reopened during request (items from version %d, reader is %d)", v, reader.Version()))
		}
	}

	base, err := search.ParseQuery(n.queryString(rctx, items), n.DefaultField)
	if err != nil {
		return nil, err
	}
	q, err := n.Parser.Parse(rctx.Params, base)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[int]*core.Item, len(items))
	hits := make([]search.ScoreDoc, len(items))
	for i, it := range items {
		byDoc[it.GlobalDoc()] = it
		hits[i] = search.ScoreDoc{Doc: it.GlobalDoc(), Score: it.Score}
	}
	docs, err := q.Rescore(ctx, reader, hits)
	if err != nil {
		return nil, err
	}
	rctx.SetValue(valueExecution, &execution{query: q, reader: reader})

	modelName := q.Model().Name()
	names := q.Model().FeatureNames()
	out := make([]*core.Item, len(docs))
	for i, d := range docs {
		it := byDoc[d.Doc]
		if d.Rescored {
			it.Score = d.Score
			it.Rescored = true
			it.Features = d.Features
			it.PutLabel("rerank", utils.Label{Value: modelName, Source: "rerank.ltr"})
			it.PutLabel("features", utils.Label{Value: FormatFeatures(names, d.Features, '=', ','), Source: "rerank.ltr"})
			it.PutMeta("rerank_rank", strconv.Itoa(i+1))
		}
		out[i] = it
	}
	return out, nil
}

const valueExecution = "rerank.execution"

type execution struct {
	query  *Query
	reader *search.Reader
}

// Executed 返回本次请求中 Node 实际使用的重排查询及其 reader，
// 用它解释结果可以与打分保持一致（不受之后的模型替换或索引重开影响）。
func Executed(rctx *core.RequestContext) (*Query, *search.Reader, bool) {
	v, ok := rctx.Value(valueExecution)
	if !ok {
		return nil, nil, false
	}
	e, ok := v.(*execution)
	if !ok {
		return nil, nil, false
	}
	return e.query, e.reader, true
}

func (n *Node) queryString(rctx *core.RequestContext, items []*core.Item) string {
	param := n.Param
	if param == "" {
		param = recall.DefaultQueryParam
	}
	if s := rctx.Params[param]; s != "" {
		return s
	}
	if s, ok := items[0].Meta[recall.MetaQuery].(string); ok {
		return s
	}
	return ""
}
