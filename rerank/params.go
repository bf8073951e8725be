// Package rerank 实现二阶段重排：包装首轮查询，对前 reRankDocs 条命中抽取特征、模型打分并重新排序，
// 其余命中保持原分数与原顺序接在后面。
//
// 典型用法：
//
//	parser := rerank.NewParser(registry, rerank.WithRescorer(rescorer))
//	q, err := parser.Parse(map[string]string{"model": "m1", "reRankDocs": "100", "efi.query": "go"}, base)
//	top, err := q.Search(ctx, search.NewSearcher(reader), 10)
package rerank

import (
	"strconv"
	"strings"

	"github.com/rushteam/ltrkit/core"
)

// Params 是解析后的请求参数
type Params struct {
	Model string
	// Store 为特征日志使用的特征库，空表示模型自身的特征库
	Store string
	Depth int
	EFI   core.EFI
	Raw   map[string]string
}

// ParseParams 解析 model / reRankDocs / fs / efi.* 参数。cfg 为 nil 时使用默认配置。
func ParseParams(raw map[string]string, cfg core.RerankConfig) (*Params, error) {
	if cfg == nil {
		cfg = &core.DefaultRerankConfig{}
	}
	p := &Params{
		Model: strings.TrimSpace(raw[core.ParamModel]),
		Store: strings.TrimSpace(raw[core.ParamFeatureStore]),
		Depth: cfg.DefaultRerankDocs(),
		EFI:   core.ExtractEFI(raw, core.EFIPrefix),
		Raw:   raw,
	}
	if p.Model == "" {
		return nil, core.BadRequestf(core.ModuleRerank, "must provide model in the request")
	}
	if s, ok := raw[core.ParamRerankDocs]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, core.BadRequestf(core.ModuleRerank, "%s must be an integer, got %q", core.ParamRerankDocs, s)
		}
		p.Depth = n
	}
	if p.Depth <= 0 {
		return nil, core.BadRequestf(core.ModuleRerank, "%s must be > 0, got %d", core.ParamRerankDocs, p.Depth)
	}
	return p, nil
}
