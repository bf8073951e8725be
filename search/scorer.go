package search

import "math"

// NoMoreDocs 表示迭代器已经耗尽。
const NoMoreDocs = math.MaxInt32

// Scorer 是一个只能前进的文档迭代器，定位到某篇文档后可读取该文档的分数。
//
// 初始 DocID 为 -1；耗尽后为 NoMoreDocs。Advance 只会前进，
// target 小于等于当前位置时不移动。
type Scorer interface {
	DocID() int
	NextDoc() int
	// Advance 前进到第一个 >= target 的文档，返回新位置
	Advance(target int) int
	// Score 返回当前文档的分数
	Score() (float64, error)
}

// ScoreFunc 计算 segment 内某篇文档的分数
type ScoreFunc func(doc int) (float64, error)

// ListScorer 基于有序文档列表的 Scorer，是大多数查询与特征的公共实现。
type ListScorer struct {
	docs  []int
	pos   int
	score ScoreFunc
}

// NewListScorer 创建 ListScorer，docs 必须升序。
func NewListScorer(docs []int, score ScoreFunc) *ListScorer {
	return &ListScorer{docs: docs, pos: -1, score: score}
}

// NewDenseScorer 匹配 segment 内全部 maxDoc 篇文档。
func NewDenseScorer(maxDoc int, score ScoreFunc) Scorer {
	return &denseScorer{maxDoc: maxDoc, doc: -1, score: score}
}

func (s *ListScorer) DocID() int {
	if s.pos < 0 {
		return -1
	}
	if s.pos >= len(s.docs) {
		return NoMoreDocs
	}
	return s.docs[s.pos]
}

func (s *ListScorer) NextDoc() int {
	if s.pos < len(s.docs) {
		s.pos++
	}
	return s.DocID()
}

func (s *ListScorer) Advance(target int) int {
	for s.DocID() < target {
		if s.NextDoc() == NoMoreDocs {
			break
		}
	}
	return s.DocID()
}

func (s *ListScorer) Score() (float64, error) {
	return s.score(s.DocID())
}

type denseScorer struct {
	maxDoc int
	doc    int
	score  ScoreFunc
}

func (s *denseScorer) DocID() int { return s.doc }

func (s *denseScorer) NextDoc() int {
	return s.Advance(s.doc + 1)
}

func (s *denseScorer) Advance(target int) int {
	if target <= s.doc || s.doc == NoMoreDocs {
		return s.doc
	}
	if target >= s.maxDoc {
		s.doc = NoMoreDocs
	} else {
		s.doc = target
	}
	return s.doc
}

func (s *denseScorer) Score() (float64, error) {
	return s.score(s.doc)
}

// disjunctionScorer 对多个子 Scorer 求并集，分数为当前文档上所有子 Scorer 分数之和。
type disjunctionScorer struct {
	subs []Scorer
	doc  int
}

func newDisjunctionScorer(subs []Scorer) Scorer {
	return &disjunctionScorer{subs: subs, doc: -1}
}

func (s *disjunctionScorer) DocID() int { return s.doc }

func (s *disjunctionScorer) NextDoc() int { return s.Advance(s.doc + 1) }

func (s *disjunctionScorer) Advance(target int) int {
	if target <= s.doc || s.doc == NoMoreDocs {
		return s.doc
	}
	next := NoMoreDocs
	for _, sub := range s.subs {
		d := sub.DocID()
		if d < target {
			d = sub.Advance(target)
		}
		if d < next {
			next = d
		}
	}
	s.doc = next
	return s.doc
}

func (s *disjunctionScorer) Score() (float64, error) {
	var sum float64
	for _, sub := range s.subs {
		if sub.DocID() != s.doc {
			continue
		}
		v, err := sub.Score()
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}
