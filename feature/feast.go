package feature

import (
	"context"
	"fmt"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feast"
	"github.com/rushteam/ltrkit/pkg/conv"
	"github.com/rushteam/ltrkit/search"
)

// feastExtractor 从 Feast 在线存储读取文档级特征。
//
// 参数：
//   - feature: 特征引用，例如 "doc_stats:ctr"（必填）
//   - entity: 实体键名，值为文档 ID，默认 "doc_id"
//   - project: 项目名（可选）
//
// 同一 segment 内的取值按 Prefetch 给出的文档批量读取并缓存。
type feastExtractor struct {
	client  feast.Client
	ref     string
	entity  string
	project string
}

func newFeastExtractor(def Definition, deps Deps) (Extractor, error) {
	if deps.Feast == nil {
		return nil, core.ConfigErrorf(core.ModuleFeature, "feature %s: feast client is not configured", def.Name)
	}
	ref, err := requireString(def, "feature")
	if err != nil {
		return nil, err
	}
	return &feastExtractor{
		client:  deps.Feast,
		ref:     ref,
		entity:  conv.ConfigGet(def.Params, "entity", "doc_id"),
		project: conv.ConfigGet(def.Params, "project", ""),
	}, nil
}

func (f *feastExtractor) Scorer(ctx context.Context, seg *search.Segment, _ *Request) (search.Scorer, error) {
	s := &feastScorer{
		ex:      f,
		ctx:     ctx,
		seg:     seg,
		values:  make(map[int]float64),
		fetched: make(map[int]bool),
	}
	s.Scorer = search.NewDenseScorer(seg.MaxDoc(), s.score)
	return s, nil
}

type feastScorer struct {
	search.Scorer

	ex      *feastExtractor
	ctx     context.Context
	seg     *search.Segment
	values  map[int]float64
	fetched map[int]bool
}

// Prefetch 一次请求取回 docs 中尚未缓存的文档
func (s *feastScorer) Prefetch(ctx context.Context, docs []int) error {
	pending := make([]int, 0, len(docs))
	for _, d := range docs {
		if !s.fetched[d] {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(pending))
	for i, d := range pending {
		rows[i] = map[string]any{s.ex.entity: s.seg.Doc(d).ID}
	}
	resp, err := s.ex.client.GetOnlineFeatures(ctx, &feast.GetOnlineFeaturesRequest{
		Features:   []string{s.ex.ref},
		EntityRows: rows,
		Project:    s.ex.project,
	})
	// 失败的文档也标记为已取，避免逐文档重试
	for _, d := range pending {
		s.fetched[d] = true
	}
	if err != nil {
		return err
	}
	if len(resp.FeatureVectors) != len(pending) {
		return fmt.Errorf("feast returned %d rows for %d entities", len(resp.FeatureVectors), len(pending))
	}
	for i, d := range pending {
		raw, ok := resp.FeatureVectors[i].Values[s.ex.ref]
		if !ok {
			continue
		}
		if v, ok := conv.ToFloat64(raw); ok {
			s.values[d] = v
		}
	}
	return nil
}

func (s *feastScorer) score(doc int) (float64, error) {
	if !s.fetched[doc] {
		if err := s.Prefetch(s.ctx, []int{doc}); err != nil {
			return 0, err
		}
	}
	v, ok := s.values[doc]
	if !ok {
		return 0, core.NewDomainError(core.ModuleFeature, core.ErrorCodeNotFound, "feast: no value for "+s.ex.ref)
	}
	return v, nil
}
