// Package recall 提供首轮检索节点：执行基础查询，产出带原始分数的候选。
package recall

import (
	"context"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/pkg/utils"
	"github.com/rushteam/ltrkit/search"
)

// 候选的 Meta key
const (
	MetaReaderVersion = "reader_version"
	MetaQuery         = "query"
)

// DefaultQueryParam 是请求中首轮查询的参数名
const DefaultQueryParam = "q"

// QueryNode 在索引的当前视图上执行首轮查询。
// 查询串取自请求参数 Param（默认 "q"），为空时使用 Query。
type QueryNode struct {
	Index        *search.Index
	DefaultField string
	Param        string
	Query        string
	// TopN 取回的命中数，<= 0 取回全部
	TopN int
	// Fields 要复制到候选 meta 的文档字段
	Fields []string
}

func (n *QueryNode) Name() string        { return "recall.query" }
func (n *QueryNode) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 忽略输入 items，返回按原始分数降序排列的候选
func (n *QueryNode) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	qs := n.queryString(rctx)
	q, err := search.ParseQuery(qs, n.DefaultField)
	if err != nil {
		return nil, err
	}
	reader := n.Index.Reader()
	top, err := search.NewSearcher(reader).Search(ctx, q, n.TopN)
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(top.ScoreDocs))
	version := strconv.FormatUint(reader.Version(), 10)
	for rank, hit := range top.ScoreDocs {
		seg := reader.SegmentFor(hit.Doc)
		it := core.NewItem("")
		it.Segment = seg.Ord()
		it.DocBase = seg.DocBase()
		it.Doc = hit.Doc - seg.DocBase()
		if d := seg.Doc(it.Doc); d != nil {
			it.ID = d.ID
			for _, f := range n.Fields {
				if v, ok := d.Fields[f]; ok {
					it.PutMeta(f, v)
				}
			}
		}
		it.OriginalScore = hit.Score
		it.Score = hit.Score
		it.PutMeta(MetaReaderVersion, reader.Version())
		it.PutMeta(MetaQuery, qs)
		it.PutLabel("recall", utils.Label{Value: strconv.Itoa(rank + 1), Source: "recall.query@" + version})
		out = append(out, it)
	}
	return out, nil
}

// ParamName 返回读取查询串的请求参数名
func (n *QueryNode) ParamName() string {
	if n.Param == "" {
		return DefaultQueryParam
	}
	return n.Param
}

func (n *QueryNode) queryString(rctx *core.RequestContext) string {
	if rctx != nil {
		if s := rctx.Params[n.ParamName()]; s != "" {
			return s
		}
	}
	return n.Query
}
