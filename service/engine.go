// Package service 把重排 pipeline 暴露为 HTTP 接口，并提供模型与特征库的管理接口。
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/recall"
	"github.com/rushteam/ltrkit/rerank"
	"github.com/rushteam/ltrkit/search"
	"github.com/rushteam/ltrkit/store"
)

// Engine 执行一次完整的重排请求并整理输出
type Engine struct {
	Index        *search.Index
	Parser       *rerank.Parser
	Registry     *store.Registry
	Pipeline     *pipeline.Pipeline
	DefaultField string
	Logger       *zap.Logger
}

// DefaultPipeline 返回 recall.query -> rerank.ltr -> rerank.topn(rows)
func DefaultPipeline(idx *search.Index, parser *rerank.Parser, field string, logger *zap.Logger) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Logger: logger,
		Nodes: []pipeline.Node{
			&recall.QueryNode{Index: idx, DefaultField: field},
			&rerank.Node{Index: idx, Parser: parser, DefaultField: field},
			&rerank.TopNNode{Param: ParamRows},
		},
	}
}

// ParamRows 是返回条数的请求参数
const ParamRows = "rows"

// Request 是一次重排请求，Params 与 Solr 风格的参数一致（q / model / reRankDocs / fs / efi.* / rows）
type Request struct {
	RequestID string
	Params    map[string]string
	Explain   bool
}

// Hit 是一条输出结果
type Hit struct {
	Rank          int                `json:"rank"`
	ID            string             `json:"id"`
	Doc           int                `json:"doc"`
	Score         float64            `json:"score"`
	OriginalScore float64            `json:"original_score"`
	Rescored      bool               `json:"rescored"`
	Features      map[string]float64 `json:"features,omitempty"`
	Explain       *core.Explanation  `json:"explain,omitempty"`
}

// Response 是一次重排请求的输出
type Response struct {
	RequestID string `json:"request_id"`
	Model     string `json:"model,omitempty"`
	Query     string `json:"query"`
	Took      string `json:"took"`
	Hits      []Hit  `json:"hits"`
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Rerank 运行 pipeline，并按需附加特征与解释
func (e *Engine) Rerank(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Params == nil {
		return nil, core.BadRequestf(core.ModuleService, "empty request")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	rctx := &core.RequestContext{
		RequestID: req.RequestID,
		Params:    req.Params,
		EFI:       core.ExtractEFI(req.Params, core.EFIPrefix),
	}

	p := e.Pipeline
	if p == nil {
		p = DefaultPipeline(e.Index, e.Parser, e.DefaultField, e.Logger)
	}
	start := time.Now()
	items, err := p.Run(ctx, rctx, nil)
	if err != nil {
		e.logger().Warn("rerank failed", zap.String("request_id", req.RequestID), zap.Error(err))
		return nil, err
	}

	resp := &Response{
		RequestID: req.RequestID,
		Model:     req.Params[core.ParamModel],
		Query:     req.Params[recall.DefaultQueryParam],
		Took:      time.Since(start).String(),
		Hits:      make([]Hit, 0, len(items)),
	}
	if resp.Query == "" && len(items) > 0 {
		resp.Query, _ = items[0].Meta[recall.MetaQuery].(string)
	}

	// 特征名与解释都取自实际执行的重排查询
	var (
		names     []string
		explainer *rerank.Query
	)
	executed, reader, ok := rerank.Executed(rctx)
	if ok {
		names = executed.Model().FeatureNames()
		if req.Explain {
			explainer = executed
		}
	}

	for i, it := range items {
		h := Hit{
			Rank:          i + 1,
			ID:            it.ID,
			Doc:           it.GlobalDoc(),
			Score:         it.Score,
			OriginalScore: it.OriginalScore,
			Rescored:      it.Rescored,
		}
		if it.Rescored && len(names) > 0 && len(it.Features) == len(names) {
			h.Features = make(map[string]float64, len(names))
			for j, name := range names {
				h.Features[name] = it.Features[j]
			}
		}
		if explainer != nil && it.Rescored {
			if h.Explain, err = explainer.Explain(ctx, reader, it.GlobalDoc()); err != nil {
				return nil, fmt.Errorf("explain %s: %w", it.ID, err)
			}
		}
		resp.Hits = append(resp.Hits, h)
	}
	return resp, nil
}
