package rerank

import (
	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/model"
	"github.com/rushteam/ltrkit/search"
)

// Resolver 按名称解析模型与特征库，找不到时返回 NOT_FOUND 错误。
type Resolver interface {
	Model(name string) (*model.Model, error)
	FeatureStore(name string) (*feature.Store, error)
}

// Parser 把请求参数与首轮查询组装成重排查询。
type Parser struct {
	resolver Resolver
	config   core.RerankConfig
	rescorer *Rescorer
}

// ParserOption 配置 Parser
type ParserOption func(*Parser)

// WithConfig 设置默认值来源
func WithConfig(cfg core.RerankConfig) ParserOption {
	return func(p *Parser) {
		if cfg != nil {
			p.config = cfg
		}
	}
}

// WithRescorer 设置执行重排的 Rescorer
func WithRescorer(r *Rescorer) ParserOption {
	return func(p *Parser) {
		if r != nil {
			p.rescorer = r
		}
	}
}

func NewParser(r Resolver, opts ...ParserOption) *Parser {
	p := &Parser{
		resolver: r,
		config:   &core.DefaultRerankConfig{},
		rescorer: NewRescorer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse 解析参数、解析模型并绑定 EFI。所有错误都在执行前返回：
// 参数与解析错误为 BAD_REQUEST，权重与特征数量不符为配置错误。
func (p *Parser) Parse(raw map[string]string, base search.Query) (*Query, error) {
	if base == nil {
		return nil, core.BadRequestf(core.ModuleRerank, "rerank requires a base query")
	}
	params, err := ParseParams(raw, p.config)
	if err != nil {
		return nil, err
	}
	m, err := p.resolver.Model(params.Model)
	if err != nil {
		return nil, asBadRequest(err, "cannot find model %s", params.Model)
	}

	var logStore *feature.Store
	if params.Store != "" {
		logStore, err = p.resolver.FeatureStore(params.Store)
		if err != nil {
			return nil, asBadRequest(err, "cannot find feature store %s", params.Store)
		}
	}

	bound, err := m.Bind(params.EFI, params.Raw)
	if err != nil {
		return nil, err
	}
	q, err := NewQuery(base, bound, params.Depth, p.rescorer)
	if err != nil {
		return nil, err
	}
	if logStore != nil && logStore.Name() != m.FeatureStoreName() {
		q.logStore = logStore
	}
	return q, nil
}

// asBadRequest 把解析失败包装成请求错误，原错误保留在错误链中
func asBadRequest(err error, format string, args ...any) error {
	if core.IsBadRequest(err) {
		return err
	}
	return core.WrapDomainError(core.ModuleRerank, core.ErrorCodeBadRequest, err, format, args...)
}
