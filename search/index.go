// Package search 定义重排所依赖的检索原语边界：segment、只能前进的 Scorer、Query 与 Searcher。
//
// 真正的索引 I/O 不在本仓库范围内，这里提供一个内存实现，既用于测试，
// 也用于命令行工具加载 JSON 语料。
package search

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Document 是索引中的一篇文档。
type Document struct {
	ID     string             `json:"id"`
	Fields map[string]string  `json:"fields,omitempty"` // 文本字段
	Values map[string]float64 `json:"values,omitempty"` // 数值字段
}

// Segment 是索引的一个分段，文档号在 segment 内从 0 开始递增。
type Segment struct {
	ord     int
	docBase int
	docs    []Document
	stats   *collectionStats

	postings  map[string]map[string][]posting // field -> term -> postings（按 doc 升序）
	fieldLens map[string][]int                // field -> doc -> 词数
}

type posting struct {
	doc  int
	freq int
}

// collectionStats 是整个 Reader 范围的统计，BM25 用它计算 idf 与平均长度。
type collectionStats struct {
	docCount  int
	totalLens map[string]int
	docFreqs  map[string]map[string]int
}

func (c *collectionStats) avgLen(field string) float64 {
	if c.docCount == 0 {
		return 0
	}
	return float64(c.totalLens[field]) / float64(c.docCount)
}

func (c *collectionStats) docFreq(field, term string) int {
	return c.docFreqs[field][term]
}

func newSegment(ord, docBase int, docs []Document, stats *collectionStats) *Segment {
	s := &Segment{
		ord:       ord,
		docBase:   docBase,
		docs:      docs,
		stats:     stats,
		postings:  make(map[string]map[string][]posting),
		fieldLens: make(map[string][]int),
	}
	for doc, d := range docs {
		for field, text := range d.Fields {
			terms := Tokenize(text)
			lens, ok := s.fieldLens[field]
			if !ok {
				lens = make([]int, len(docs))
				s.fieldLens[field] = lens
			}
			lens[doc] = len(terms)
			stats.totalLens[field] += len(terms)

			freqs := make(map[string]int, len(terms))
			for _, t := range terms {
				freqs[t]++
			}
			byTerm, ok := s.postings[field]
			if !ok {
				byTerm = make(map[string][]posting)
				s.postings[field] = byTerm
			}
			df, ok := stats.docFreqs[field]
			if !ok {
				df = make(map[string]int)
				stats.docFreqs[field] = df
			}
			for t, f := range freqs {
				byTerm[t] = append(byTerm[t], posting{doc: doc, freq: f})
				df[t]++
			}
		}
	}
	return s
}

// Ord 返回 segment 序号
func (s *Segment) Ord() int { return s.ord }

// DocBase 返回 segment 的全局起始文档号
func (s *Segment) DocBase() int { return s.docBase }

// MaxDoc 返回 segment 内文档数
func (s *Segment) MaxDoc() int { return len(s.docs) }

// Doc 返回 segment 内文档，越界返回 nil
func (s *Segment) Doc(doc int) *Document {
	if doc < 0 || doc >= len(s.docs) {
		return nil
	}
	return &s.docs[doc]
}

// Terms 返回字段在本 segment 内出现过的所有词（无序）
func (s *Segment) Terms(field string) []string {
	byTerm := s.postings[field]
	out := make([]string, 0, len(byTerm))
	for t := range byTerm {
		out = append(out, t)
	}
	return out
}

// Tokenize 小写化并按非字母数字字符切分。
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127)
	})
}

// Reader 是索引的一个不可变视图。segment 合并或重新打开会产生新的 Reader（Version 递增）。
type Reader struct {
	segments []*Segment
	version  uint64
	maxDoc   int
	stats    *collectionStats
}

// NewReader 由文档构建 Reader，每 segmentSize 篇文档一个 segment（<=0 表示单 segment）。
func NewReader(docs []Document, segmentSize int) *Reader {
	return newReader(docs, segmentSize, 1)
}

func newReader(docs []Document, segmentSize int, version uint64) *Reader {
	if segmentSize <= 0 {
		segmentSize = len(docs)
	}
	stats := &collectionStats{
		docCount:  len(docs),
		totalLens: make(map[string]int),
		docFreqs:  make(map[string]map[string]int),
	}
	r := &Reader{version: version, maxDoc: len(docs), stats: stats}
	for start := 0; start < len(docs); start += segmentSize {
		end := min(start+segmentSize, len(docs))
		part := make([]Document, end-start)
		copy(part, docs[start:end])
		r.segments = append(r.segments, newSegment(len(r.segments), start, part, stats))
	}
	return r
}

// Segments 返回全部 segment
func (r *Reader) Segments() []*Segment { return r.segments }

// Version 返回视图版本
func (r *Reader) Version() uint64 { return r.version }

// MaxDoc 返回总文档数
func (r *Reader) MaxDoc() int { return r.maxDoc }

// Segment 按序号返回 segment，不存在返回 nil
func (r *Reader) Segment(ord int) *Segment {
	if ord < 0 || ord >= len(r.segments) {
		return nil
	}
	return r.segments[ord]
}

// SegmentFor 返回包含全局文档号 doc 的 segment
func (r *Reader) SegmentFor(doc int) *Segment {
	i := sort.Search(len(r.segments), func(i int) bool {
		return r.segments[i].docBase+r.segments[i].MaxDoc() > doc
	})
	if i == len(r.segments) || doc < r.segments[i].docBase {
		return nil
	}
	return r.segments[i]
}

// Documents 按全局文档号顺序返回所有文档
func (r *Reader) Documents() []Document {
	docs := make([]Document, 0, r.maxDoc)
	for _, s := range r.segments {
		docs = append(docs, s.docs...)
	}
	return docs
}

// Merge 把所有 segment 按 segmentSize 重新分段，返回新版本的 Reader。
func (r *Reader) Merge(segmentSize int) *Reader {
	return newReader(r.Documents(), segmentSize, r.version+1)
}

// Add 追加文档，返回新版本的 Reader（新文档组成新的 segment）。
func (r *Reader) Add(docs ...Document) *Reader {
	all := r.Documents()
	sizes := make([]int, 0, len(r.segments)+1)
	for _, s := range r.segments {
		sizes = append(sizes, s.MaxDoc())
	}
	sizes = append(sizes, len(docs))
	all = append(all, docs...)

	stats := &collectionStats{
		docCount:  len(all),
		totalLens: make(map[string]int),
		docFreqs:  make(map[string]map[string]int),
	}
	next := &Reader{version: r.version + 1, maxDoc: len(all), stats: stats}
	start := 0
	for _, n := range sizes {
		if n == 0 {
			continue
		}
		part := make([]Document, n)
		copy(part, all[start:start+n])
		next.segments = append(next.segments, newSegment(len(next.segments), start, part, stats))
		start += n
	}
	return next
}

// Index 持有当前的 Reader，重新打开时原子替换。
type Index struct {
	reader atomic.Pointer[Reader]
}

// NewIndex 创建持有 r 的 Index
func NewIndex(r *Reader) *Index {
	idx := &Index{}
	idx.reader.Store(r)
	return idx
}

// Reader 返回当前视图
func (i *Index) Reader() *Reader { return i.reader.Load() }

// Reopen 替换当前视图
func (i *Index) Reopen(r *Reader) { i.reader.Store(r) }
