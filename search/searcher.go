package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rushteam/ltrkit/core"
)

// ScoreDoc 是一条命中：全局文档号 + 分数。
type ScoreDoc struct {
	Doc   int     `json:"doc"`
	Score float64 `json:"score"`
}

// TopDocs 是一次检索的结果，ScoreDocs 按分数降序（同分按文档号升序）。
type TopDocs struct {
	TotalHits int        `json:"total_hits"`
	ScoreDocs []ScoreDoc `json:"score_docs"`
}

// SortScoreDocs 按分数降序、文档号升序排序
func SortScoreDocs(hits []ScoreDoc) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc < hits[j].Doc
	})
}

const maxRewrites = 16

// Rewrite 反复改写查询直到不再变化。
func Rewrite(q Query, r *Reader) (Query, error) {
	for i := 0; i < maxRewrites; i++ {
		next, err := q.Rewrite(r)
		if err != nil {
			return nil, err
		}
		if next == q {
			return q, nil
		}
		q = next
	}
	return nil, fmt.Errorf("query %s did not converge after %d rewrites", q, maxRewrites)
}

// Searcher 在一个 Reader 上执行查询。
type Searcher struct {
	reader *Reader
}

func NewSearcher(r *Reader) *Searcher {
	return &Searcher{reader: r}
}

// Reader 返回 Searcher 使用的视图
func (s *Searcher) Reader() *Reader { return s.reader }

// Search 执行查询并返回前 n 条命中（n <= 0 返回全部）。
func (s *Searcher) Search(ctx context.Context, q Query, n int) (*TopDocs, error) {
	rewritten, err := Rewrite(q, s.reader)
	if err != nil {
		return nil, err
	}
	var hits []ScoreDoc
	for _, seg := range s.reader.Segments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scorer, err := rewritten.Scorer(ctx, seg)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", seg.Ord(), err)
		}
		if scorer == nil {
			continue
		}
		for doc := scorer.NextDoc(); doc != NoMoreDocs; doc = scorer.NextDoc() {
			score, err := scorer.Score()
			if err != nil {
				return nil, fmt.Errorf("segment %d doc %d: %w", seg.Ord(), doc, err)
			}
			hits = append(hits, ScoreDoc{Doc: seg.DocBase() + doc, Score: score})
		}
	}
	SortScoreDocs(hits)
	total := len(hits)
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	return &TopDocs{TotalHits: total, ScoreDocs: hits}, nil
}

// ParseQuery 解析简单查询语法：
//   - "*:*" 匹配所有文档
//   - "value:price" 以数值字段 price 的值作为分数
//   - "title:foo" 词查询，"title:fo*" 前缀查询
//   - 多个子句以空格分隔时取并集
//
// 未指定字段的子句使用 defaultField。
func ParseQuery(s, defaultField string) (Query, error) {
	clauses := strings.Fields(s)
	if len(clauses) == 0 {
		return nil, core.BadRequestf(core.ModuleSearch, "empty query")
	}
	queries := make([]Query, 0, len(clauses))
	for _, c := range clauses {
		q, err := parseClause(c, defaultField)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return &DisjunctionQuery{Clauses: queries}, nil
}

func parseClause(c, defaultField string) (Query, error) {
	if c == "*:*" {
		return MatchAllQuery{}, nil
	}
	field, text := defaultField, c
	if i := strings.IndexByte(c, ':'); i >= 0 {
		field, text = c[:i], c[i+1:]
	}
	if field == "" || text == "" {
		return nil, core.BadRequestf(core.ModuleSearch, "malformed query clause %q", c)
	}
	if field == "value" {
		return &FieldValueQuery{Field: text}, nil
	}
	if strings.HasSuffix(text, "*") {
		prefix := strings.ToLower(strings.TrimSuffix(text, "*"))
		if prefix == "" {
			return nil, core.BadRequestf(core.ModuleSearch, "empty prefix in %q", c)
		}
		return &PrefixQuery{Field: field, Prefix: prefix}, nil
	}
	return NewTermQuery(field, text), nil
}
