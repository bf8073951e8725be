package feature

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/search"
)

// Engine 是一次请求的特征抽取引擎：持有特征全集（superset）与请求输入，
// 为每个 segment 生成独立的 SegmentScorer。Engine 本身只读，可被多个 segment 并发使用。
type Engine struct {
	specs   []*Spec
	req     *Request
	logger  *zap.Logger
	monitor FeatureMonitor
}

// Option 配置 Engine
type Option func(*Engine)

// WithLogger 设置日志，默认 zap.NewNop()
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMonitor 设置特征监控
func WithMonitor(m FeatureMonitor) Option {
	return func(e *Engine) {
		if m != nil {
			e.monitor = m
		}
	}
}

// NewEngine 创建引擎，specs 为特征全集（按特征 id 顺序）。
func NewEngine(specs []*Spec, req *Request, opts ...Option) *Engine {
	if req == nil {
		req = &Request{}
	}
	e := &Engine{
		specs:   specs,
		req:     req,
		logger:  zap.NewNop(),
		monitor: nopMonitor{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Len 返回特征向量长度
func (e *Engine) Len() int { return len(e.specs) }

// Specs 返回特征全集
func (e *Engine) Specs() []*Spec { return e.specs }

// Segment 返回 seg 上的抽取器。Scorer 在第一次使用时才创建，每个 segment 只创建一次。
// 返回的 SegmentScorer 只能在单个 goroutine 中使用。
func (e *Engine) Segment(ctx context.Context, seg *search.Segment) *SegmentScorer {
	return &SegmentScorer{
		engine: e,
		ctx:    ctx,
		seg:    seg,
		slots:  make([]search.Scorer, len(e.specs)),
	}
}

// SegmentScorer 持有一个 segment 上每个特征一个 Scorer 槽位（按特征 id 索引），
// 不与其它 segment 共享。文档必须按文档号非递减顺序抽取。
type SegmentScorer struct {
	engine *Engine
	ctx    context.Context
	seg    *search.Segment
	slots  []search.Scorer
	ready  bool
}

// Segment 返回所属 segment
func (s *SegmentScorer) Segment() *search.Segment { return s.seg }

func (s *SegmentScorer) init() {
	if s.ready {
		return
	}
	s.ready = true
	for i, spec := range s.engine.specs {
		sc, err := s.build(spec)
		if err != nil {
			s.engine.logger.Debug("feature scorer unavailable, using default",
				zap.String("feature", spec.Name),
				zap.Int("segment", s.seg.Ord()),
				zap.Error(err))
			s.engine.monitor.RecordFeatureError(s.ctx, spec.Name, err)
			continue
		}
		s.slots[i] = sc
	}
}

func (s *SegmentScorer) build(spec *Spec) (sc search.Scorer, err error) {
	defer func() {
		if r := recover(); r != nil {
			sc, err = nil, fmt.Errorf("panic building scorer: %v", r)
		}
	}()
	return spec.extractor.Scorer(s.ctx, s.seg, s.engine.req)
}

// Prefetch 让支持批量读取的 Scorer 预先加载 docs（升序）的取值，失败时对应特征退回默认值。
func (s *SegmentScorer) Prefetch(docs []int) {
	s.init()
	for i, sc := range s.slots {
		p, ok := sc.(Prefetcher)
		if !ok {
			continue
		}
		if err := s.prefetch(p, docs); err != nil {
			name := s.engine.specs[i].Name
			s.engine.logger.Debug("feature prefetch failed",
				zap.String("feature", name),
				zap.Int("segment", s.seg.Ord()),
				zap.Int("docs", len(docs)),
				zap.Error(err))
			s.engine.monitor.RecordFeatureError(s.ctx, name, err)
		}
	}
}

func (s *SegmentScorer) prefetch(p Prefetcher, docs []int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in prefetch: %v", r)
		}
	}()
	return p.Prefetch(s.ctx, docs)
}

// Extract 返回 doc 的原始特征向量（长度为特征全集大小）。
func (s *SegmentScorer) Extract(doc int) []float64 {
	v := make([]float64, len(s.engine.specs))
	s.ExtractInto(doc, v)
	return v
}

// ExtractInto 把 doc 的原始特征写入 dst，len(dst) 必须等于特征全集大小。
// 无法取值的特征写入默认值，错误与 panic 都在此吸收。
func (s *SegmentScorer) ExtractInto(doc int, dst []float64) {
	s.init()
	for i, spec := range s.engine.specs {
		if v, ok := s.value(i, doc); ok {
			dst[i] = v
		} else {
			dst[i] = spec.Default
		}
	}
}

// Explain 返回 doc 每个特征的解释（未归一化），顺序与特征全集一致。
func (s *SegmentScorer) Explain(doc int) []*core.Explanation {
	s.init()
	out := make([]*core.Explanation, len(s.engine.specs))
	for i, spec := range s.engine.specs {
		if v, ok := s.value(i, doc); ok {
			out[i] = core.NewExplanation(v, spec.Name)
			continue
		}
		out[i] = core.NewExplanation(spec.Default, spec.Name,
			core.NewExplanation(spec.Default, "default value, feature not available for this document"))
	}
	return out
}

func (s *SegmentScorer) value(i, doc int) (v float64, ok bool) {
	spec := s.engine.specs[i]
	sc := s.slots[i]
	if sc == nil {
		s.missing(spec, doc, "no scorer")
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			s.failed(spec, doc, fmt.Errorf("panic: %v", r))
			v, ok = 0, false
		}
	}()

	if sc.DocID() < doc {
		sc.Advance(doc)
	}
	if sc.DocID() != doc {
		s.missing(spec, doc, "not positioned")
		return 0, false
	}
	v, err := sc.Score()
	if err != nil {
		if core.IsNotFound(err) {
			s.missing(spec, doc, err.Error())
		} else {
			s.failed(spec, doc, err)
		}
		return 0, false
	}
	s.engine.monitor.RecordFeatureUsage(s.ctx, spec.Name, v)
	return v, true
}

func (s *SegmentScorer) docID(doc int) string {
	if d := s.seg.Doc(doc); d != nil {
		return d.ID
	}
	return ""
}

func (s *SegmentScorer) missing(spec *Spec, doc int, reason string) {
	s.engine.logger.Debug("feature missing, using default",
		zap.String("feature", spec.Name),
		zap.Int("segment", s.seg.Ord()),
		zap.Int("doc", doc),
		zap.String("reason", reason),
		zap.Float64("default", spec.Default))
	s.engine.monitor.RecordFeatureMissing(s.ctx, spec.Name, "doc", s.docID(doc))
}

func (s *SegmentScorer) failed(spec *Spec, doc int, err error) {
	s.engine.logger.Debug("error computing feature, using default",
		zap.String("feature", spec.Name),
		zap.Int("segment", s.seg.Ord()),
		zap.Int("doc", doc),
		zap.Float64("default", spec.Default),
		zap.Error(err))
	s.engine.monitor.RecordFeatureError(s.ctx, spec.Name, err)
}
