package rerank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/governor"
	"github.com/rushteam/ltrkit/search"
)

// Observer 观察重排执行，实现需并发安全（如 metrics.Collector）
type Observer interface {
	ObserveRescore(model string, docs int, d time.Duration, err error)
}

// Rescorer 持有重排执行所需的进程级依赖，可被并发查询共享。
type Rescorer struct {
	governor *governor.Governor
	logger   *zap.Logger
	monitor  feature.FeatureMonitor
	flogger  FeatureLogger
	observer Observer
}

// Option 配置 Rescorer
type Option func(*Rescorer)

// WithGovernor 设置并发控制，nil 表示在调用方协程内按 segment 顺序执行
func WithGovernor(g *governor.Governor) Option {
	return func(r *Rescorer) { r.governor = g }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(r *Rescorer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMonitor 设置特征监控
func WithMonitor(m feature.FeatureMonitor) Option {
	return func(r *Rescorer) { r.monitor = m }
}

// WithFeatureLogger 设置特征向量日志
func WithFeatureLogger(fl FeatureLogger) Option {
	return func(r *Rescorer) { r.flogger = fl }
}

// WithObserver 设置执行观察者
func WithObserver(o Observer) Option {
	return func(r *Rescorer) { r.observer = o }
}

func NewRescorer(opts ...Option) *Rescorer {
	r := &Rescorer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RescoredDoc 是重排后的一条命中
type RescoredDoc struct {
	search.ScoreDoc
	OriginalScore float64
	Rescored      bool
	// Features 为模型特征向量（已归一化），仅 Rescored 为 true 时有值
	Features []float64
}

// Rescore 对 hits 的前 q.Depth() 条重排，返回新切片；hits 须按首轮分数排好序。
func (r *Rescorer) Rescore(ctx context.Context, reader *search.Reader, q *Query, hits []search.ScoreDoc) ([]search.ScoreDoc, error) {
	docs, err := r.RescoreDocs(ctx, reader, q, hits)
	if err != nil {
		return nil, err
	}
	out := make([]search.ScoreDoc, len(docs))
	for i, d := range docs {
		out[i] = d.ScoreDoc
	}
	return out, nil
}

// segmentWork 是一个 segment 上需要打分的命中，按 segment 内文档号升序
type segmentWork struct {
	seg  *search.Segment
	refs []int // head 中的下标
}

// RescoreDocs 同 Rescore，额外返回原始分数与模型特征向量。
// 只有前 min(depth, len(hits)) 条会被重新排序，其余保持原分数与原顺序。
func (r *Rescorer) RescoreDocs(ctx context.Context, reader *search.Reader, q *Query, hits []search.ScoreDoc) (out []RescoredDoc, err error) {
	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveRescore(q.Model().Name(), len(out), time.Since(start), err)
		}
	}()

	n := min(q.Depth(), len(hits))
	out = make([]RescoredDoc, len(hits))
	for i, h := range hits {
		out[i] = RescoredDoc{ScoreDoc: h, OriginalScore: h.Score}
	}
	if n == 0 {
		return out, nil
	}
	head := out[:n]

	works, err := groupBySegment(reader, head)
	if err != nil {
		return nil, err
	}

	engine, logEngine := r.engines(q)
	tasks := make([]governor.Task, len(works))
	for i, w := range works {
		tasks[i] = func(ctx context.Context) error {
			return r.scoreSegment(ctx, q, engine, logEngine, w, head)
		}
	}
	if err := r.governor.Run(ctx, tasks); err != nil {
		return nil, err
	}

	// 同分保持首轮相对顺序
	sort.SliceStable(head, func(i, j int) bool { return head[i].Score > head[j].Score })
	r.logger.Debug("rescored",
		zap.String("model", q.Model().Name()),
		zap.Int("head", n),
		zap.Int("tail", len(hits)-n),
		zap.Int("segments", len(works)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func groupBySegment(reader *search.Reader, head []RescoredDoc) ([]*segmentWork, error) {
	byOrd := make(map[int]*segmentWork)
	var works []*segmentWork
	for i, h := range head {
		seg := reader.SegmentFor(h.Doc)
		if seg == nil {
			return nil, core.NewDomainError(core.ModuleRerank, core.ErrorCodeInternalError,
				fmt.Sprintf("doc %d is outside of reader (maxDoc=%d)", h.Doc, reader.MaxDoc()))
		}
		w, ok := byOrd[seg.Ord()]
		if !ok {
			w = &segmentWork{seg: seg}
			byOrd[seg.Ord()] = w
			works = append(works, w)
		}
		w.refs = append(w.refs, i)
	}
	for _, w := range works {
		sort.Slice(w.refs, func(i, j int) bool { return head[w.refs[i]].Doc < head[w.refs[j]].Doc })
	}
	sort.Slice(works, func(i, j int) bool { return works[i].seg.Ord() < works[j].seg.Ord() })
	return works, nil
}

func (r *Rescorer) engines(q *Query) (engine, logEngine *feature.Engine) {
	req := &feature.Request{EFI: q.bound.EFI(), Base: q.base}
	opts := []feature.Option{feature.WithLogger(r.logger)}
	if r.monitor != nil {
		opts = append(opts, feature.WithMonitor(r.monitor))
	}
	engine = feature.NewEngine(q.Model().AllFeatures(), req, opts...)
	if r.flogger != nil && q.logStore != nil {
		logEngine = feature.NewEngine(q.logStore.Features(), req, opts...)
	}
	return engine, logEngine
}

// scoreSegment 在单个 segment 内按文档号升序抽取特征并打分，只写 head 中属于本 segment 的条目。
func (r *Rescorer) scoreSegment(ctx context.Context, q *Query, engine, logEngine *feature.Engine, w *segmentWork, head []RescoredDoc) error {
	docBase := w.seg.DocBase()
	docs := make([]int, len(w.refs))
	for i, ref := range w.refs {
		docs[i] = head[ref].Doc - docBase
	}

	sc := engine.Segment(ctx, w.seg)
	sc.Prefetch(docs)
	var logSc *feature.SegmentScorer
	if logEngine != nil {
		logSc = logEngine.Segment(ctx, w.seg)
		logSc.Prefetch(docs)
	}

	all := make([]float64, engine.Len())
	for i, ref := range w.refs {
		// 当前文档总会执行完，之后的文档在取消后不再调度
		if i > 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		sc.ExtractInto(docs[i], all)
		vec := q.Model().Select(all)
		if err := q.Model().NormalizeInPlace(vec); err != nil {
			return err
		}
		score := q.bound.Algorithm().Score(vec)

		h := &head[ref]
		h.Score = score
		h.Rescored = true
		h.Features = vec

		if r.flogger != nil {
			rec := FeatureRecord{
				Model: q.Model().Name(),
				Doc:   h.Doc,
				Score: score,
			}
			if d := w.seg.Doc(docs[i]); d != nil {
				rec.DocID = d.ID
			}
			if logSc != nil {
				rec.Store = q.logStore.Name()
				rec.Names = q.logStore.Names()
				rec.Values = logSc.Extract(docs[i])
			} else {
				rec.Store = q.Model().FeatureStoreName()
				rec.Names = featureNames(q.Model().AllFeatures())
				rec.Values = append([]float64(nil), all...)
			}
			r.flogger.LogFeatures(ctx, rec)
		}
	}
	return nil
}

func featureNames(specs []*feature.Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

// Explain 返回全局文档号 doc 的模型打分解释，q 须已针对 reader 改写。
func (r *Rescorer) Explain(ctx context.Context, reader *search.Reader, q *Query, doc int) (*core.Explanation, error) {
	seg := reader.SegmentFor(doc)
	if seg == nil {
		return nil, core.BadRequestf(core.ModuleRerank, "doc %d is outside of reader (maxDoc=%d)", doc, reader.MaxDoc())
	}
	engine, _ := r.engines(q)
	exps := engine.Segment(ctx, seg).Explain(doc - seg.DocBase())
	return q.bound.Explain(exps)
}
