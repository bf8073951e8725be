package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/rushteam/ltrkit/core"
)

// BM25 参数
const (
	k1 = 1.2
	b  = 0.75
)

// Query 是首轮检索查询的抽象。
//
// Scorer 在没有任何文档匹配时返回 (nil, nil)。
// Rewrite 在 Reader 变化后被调用，返回等价但可直接打分的查询；无需改写时返回自身。
type Query interface {
	Scorer(ctx context.Context, seg *Segment) (Scorer, error)
	Rewrite(r *Reader) (Query, error)
	String() string
	Equal(other Query) bool
	Hash() uint64
}

// Matcher 是可选能力：返回文档在哪些字段上命中了查询。
type Matcher interface {
	Matches(ctx context.Context, seg *Segment, doc int) ([]string, error)
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// TermQuery 在文本字段中匹配单个词，按 BM25 打分。
type TermQuery struct {
	Field string
	Term  string
}

// NewTermQuery 创建 TermQuery，term 会被小写化
func NewTermQuery(field, term string) *TermQuery {
	return &TermQuery{Field: field, Term: strings.ToLower(term)}
}

func (q *TermQuery) Scorer(_ context.Context, seg *Segment) (Scorer, error) {
	postings := seg.postings[q.Field][q.Term]
	if len(postings) == 0 {
		return nil, nil
	}
	docs := make([]int, len(postings))
	freqs := make(map[int]int, len(postings))
	for i, p := range postings {
		docs[i] = p.doc
		freqs[p.doc] = p.freq
	}
	idf := computeIDF(seg.stats.docCount, seg.stats.docFreq(q.Field, q.Term))
	avgLen := seg.stats.avgLen(q.Field)
	lens := seg.fieldLens[q.Field]
	return NewListScorer(docs, func(doc int) (float64, error) {
		return idf * computeTFNorm(float64(freqs[doc]), float64(lens[doc]), avgLen), nil
	}), nil
}

func computeIDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

func (q *TermQuery) Rewrite(*Reader) (Query, error) { return q, nil }

func (q *TermQuery) Matches(_ context.Context, seg *Segment, doc int) ([]string, error) {
	for _, p := range seg.postings[q.Field][q.Term] {
		if p.doc == doc {
			return []string{q.Field}, nil
		}
	}
	return nil, nil
}

func (q *TermQuery) String() string { return q.Field + ":" + q.Term }

func (q *TermQuery) Equal(other Query) bool {
	o, ok := other.(*TermQuery)
	return ok && o.Field == q.Field && o.Term == q.Term
}

func (q *TermQuery) Hash() uint64 { return hashString("term|" + q.String()) }

// MatchAllQuery 匹配所有文档，分数恒为 1。
type MatchAllQuery struct{}

func (q MatchAllQuery) Scorer(_ context.Context, seg *Segment) (Scorer, error) {
	if seg.MaxDoc() == 0 {
		return nil, nil
	}
	return NewDenseScorer(seg.MaxDoc(), func(int) (float64, error) { return 1, nil }), nil
}

func (q MatchAllQuery) Rewrite(*Reader) (Query, error) { return q, nil }
func (q MatchAllQuery) String() string                  { return "*:*" }
func (q MatchAllQuery) Hash() uint64                    { return hashString("all") }

func (q MatchAllQuery) Equal(other Query) bool {
	_, ok := other.(MatchAllQuery)
	return ok
}

// FieldValueQuery 匹配含有数值字段 Field 的文档，分数为该字段的值。
type FieldValueQuery struct {
	Field string
}

func (q *FieldValueQuery) Scorer(_ context.Context, seg *Segment) (Scorer, error) {
	var docs []int
	for doc := range seg.docs {
		if _, ok := seg.docs[doc].Values[q.Field]; ok {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return NewListScorer(docs, func(doc int) (float64, error) {
		return seg.docs[doc].Values[q.Field], nil
	}), nil
}

func (q *FieldValueQuery) Rewrite(*Reader) (Query, error) { return q, nil }
func (q *FieldValueQuery) String() string                  { return "value:" + q.Field }
func (q *FieldValueQuery) Hash() uint64                    { return hashString("value|" + q.Field) }

func (q *FieldValueQuery) Equal(other Query) bool {
	o, ok := other.(*FieldValueQuery)
	return ok && o.Field == q.Field
}

// DisjunctionQuery 匹配任一子查询命中的文档，分数为命中子查询分数之和。
type DisjunctionQuery struct {
	Clauses []Query
}

func (q *DisjunctionQuery) Scorer(ctx context.Context, seg *Segment) (Scorer, error) {
	subs := make([]Scorer, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		s, err := c.Scorer(ctx, seg)
		if err != nil {
			return nil, err
		}
		if s != nil {
			subs = append(subs, s)
		}
	}
	switch len(subs) {
	case 0:
		return nil, nil
	case 1:
		return subs[0], nil
	}
	return newDisjunctionScorer(subs), nil
}

func (q *DisjunctionQuery) Rewrite(r *Reader) (Query, error) {
	changed := false
	clauses := make([]Query, len(q.Clauses))
	for i, c := range q.Clauses {
		rc, err := c.Rewrite(r)
		if err != nil {
			return nil, err
		}
		if rc != c {
			changed = true
		}
		clauses[i] = rc
	}
	if !changed {
		return q, nil
	}
	return &DisjunctionQuery{Clauses: clauses}, nil
}

func (q *DisjunctionQuery) Matches(ctx context.Context, seg *Segment, doc int) ([]string, error) {
	var fields []string
	for _, c := range q.Clauses {
		m, ok := c.(Matcher)
		if !ok {
			continue
		}
		f, err := m.Matches(ctx, seg, doc)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f...)
	}
	return fields, nil
}

func (q *DisjunctionQuery) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func (q *DisjunctionQuery) Equal(other Query) bool {
	o, ok := other.(*DisjunctionQuery)
	if !ok || len(o.Clauses) != len(q.Clauses) {
		return false
	}
	for i := range q.Clauses {
		if !q.Clauses[i].Equal(o.Clauses[i]) {
			return false
		}
	}
	return true
}

func (q *DisjunctionQuery) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("or"))
	for _, c := range q.Clauses {
		_, _ = fmt.Fprintf(h, "|%d", c.Hash())
	}
	return h.Sum64()
}

// PrefixQuery 匹配以 Prefix 开头的词。打分前必须针对具体 Reader 改写为 DisjunctionQuery。
type PrefixQuery struct {
	Field  string
	Prefix string
}

func (q *PrefixQuery) Scorer(context.Context, *Segment) (Scorer, error) {
	return nil, core.NotSupportedf(core.ModuleSearch, "prefix query %s must be rewritten before scoring", q)
}

func (q *PrefixQuery) Rewrite(r *Reader) (Query, error) {
	seen := make(map[string]struct{})
	for _, seg := range r.Segments() {
		for _, t := range seg.Terms(q.Field) {
			if strings.HasPrefix(t, q.Prefix) {
				seen[t] = struct{}{}
			}
		}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	clauses := make([]Query, len(terms))
	for i, t := range terms {
		clauses[i] = &TermQuery{Field: q.Field, Term: t}
	}
	return &DisjunctionQuery{Clauses: clauses}, nil
}

func (q *PrefixQuery) String() string { return q.Field + ":" + q.Prefix + "*" }
func (q *PrefixQuery) Hash() uint64   { return hashString("prefix|" + q.String()) }

func (q *PrefixQuery) Equal(other Query) bool {
	o, ok := other.(*PrefixQuery)
	return ok && o.Field == q.Field && o.Prefix == q.Prefix
}
