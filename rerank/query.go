package rerank

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/model"
	"github.com/rushteam/ltrkit/search"
)

// Query 是重排查询：首轮查询 + 绑定后的模型 + 重排深度。
// 不可变，Rewrite 返回新实例并沿用同一个绑定模型。
//
// 作为 search.Query 使用时，打分委托给首轮查询；重排只在 Search 中发生。
type Query struct {
	base     search.Query
	bound    *model.Bound
	depth    int
	rescorer *Rescorer
	logStore *feature.Store
}

var _ search.Query = (*Query)(nil)

// NewQuery 创建重排查询，depth 必须 >= 1。
func NewQuery(base search.Query, bound *model.Bound, depth int, rescorer *Rescorer) (*Query, error) {
	if depth <= 0 {
		return nil, core.BadRequestf(core.ModuleRerank, "%s must be > 0, got %d", core.ParamRerankDocs, depth)
	}
	if base == nil || bound == nil {
		return nil, core.BadRequestf(core.ModuleRerank, "rerank requires a base query and a model")
	}
	if rescorer == nil {
		rescorer = NewRescorer()
	}
	return &Query{base: base, bound: bound, depth: depth, rescorer: rescorer}, nil
}

// Base 返回首轮查询
func (q *Query) Base() search.Query { return q.base }

// Bound 返回绑定后的模型
func (q *Query) Bound() *model.Bound { return q.bound }

// Model 返回模型
func (q *Query) Model() *model.Model { return q.bound.Model() }

// Depth 返回重排深度
func (q *Query) Depth() int { return q.depth }

// LogStore 返回特征日志使用的特征库，nil 表示使用模型特征库
func (q *Query) LogStore() *feature.Store { return q.logStore }

// Search 执行首轮查询取 max(n, depth) 条命中，对前 min(depth, 命中数) 条重排，返回前 n 条（n <= 0 返回全部）。
func (q *Query) Search(ctx context.Context, s *search.Searcher, n int) (*search.TopDocs, error) {
	rq, err := search.Rewrite(q, s.Reader())
	if err != nil {
		return nil, err
	}
	rw := rq.(*Query)

	want := n
	if want > 0 && want < rw.depth {
		want = rw.depth
	}
	top, err := s.Search(ctx, rw.base, want)
	if err != nil {
		return nil, err
	}
	hits, err := rw.rescorer.Rescore(ctx, s.Reader(), rw, top.ScoreDocs)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	return &search.TopDocs{TotalHits: top.TotalHits, ScoreDocs: hits}, nil
}

// Rescore 对已有的首轮命中（按首轮分数排好序）执行重排
func (q *Query) Rescore(ctx context.Context, r *search.Reader, hits []search.ScoreDoc) ([]RescoredDoc, error) {
	rq, err := search.Rewrite(q, r)
	if err != nil {
		return nil, err
	}
	return q.rescorer.RescoreDocs(ctx, r, rq.(*Query), hits)
}

// Explain 返回全局文档号 doc 的模型打分解释
func (q *Query) Explain(ctx context.Context, r *search.Reader, doc int) (*core.Explanation, error) {
	rq, err := search.Rewrite(q, r)
	if err != nil {
		return nil, err
	}
	return q.rescorer.Explain(ctx, r, rq.(*Query), doc)
}

// Scorer 委托给首轮查询
func (q *Query) Scorer(ctx context.Context, seg *search.Segment) (search.Scorer, error) {
	return q.base.Scorer(ctx, seg)
}

// Rewrite 改写首轮查询；首轮查询不变时返回自身。
func (q *Query) Rewrite(r *search.Reader) (search.Query, error) {
	rewritten, err := search.Rewrite(q.base, r)
	if err != nil {
		return nil, err
	}
	if rewritten == q.base {
		return q, nil
	}
	return &Query{
		base:     rewritten,
		bound:    q.bound,
		depth:    q.depth,
		rescorer: q.rescorer,
		logStore: q.logStore,
	}, nil
}

// Matches 不支持：重排模型无法给出命中位置
func (q *Query) Matches(context.Context, *search.Segment, int) ([]string, error) {
	return nil, core.NotSupportedf(core.ModuleRerank, "matches are not supported by %s", q)
}

func (q *Query) String() string {
	return fmt.Sprintf("{!ltr mainQuery='%s' scoringQuery='%s' reRankDocs=%d}", q.base, q.bound.Model(), q.depth)
}

// Equal 比较模型（含 EFI）、首轮查询、重排深度与特征日志库
func (q *Query) Equal(other search.Query) bool {
	o, ok := other.(*Query)
	if !ok {
		return false
	}
	if q == o {
		return true
	}
	return q.depth == o.depth && q.logStoreName() == o.logStoreName() &&
		q.base.Equal(o.base) && q.bound.Equal(o.bound)
}

func (q *Query) Hash() uint64 {
	h := uint64(17)
	h = h*31 + q.bound.Hash()
	h = h*31 + q.base.Hash()
	h = h*31 + uint64(q.depth)
	if name := q.logStoreName(); name != "" {
		f := fnv.New64a()
		_, _ = f.Write([]byte(name))
		h = h*31 + f.Sum64()
	}
	return h
}

func (q *Query) logStoreName() string {
	if q.logStore == nil {
		return ""
	}
	return q.logStore.Name()
}
