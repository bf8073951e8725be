// Package feature 实现特征定义、特征库以及按 segment 工作的特征抽取引擎。
//
// 抽取流程：
//   - Spec 描述一个特征（名称、类型、参数、默认值、归一化器），由类型注册表构建出 Extractor
//   - Store 是有序、名称唯一的 Spec 集合，位置即特征 id
//   - Engine 为每个 segment 懒加载一组 Scorer，按文档号递增抽取特征向量，
//     无法取值的特征使用默认值，单个特征的错误不会影响其它特征
package feature

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feast"
	"github.com/rushteam/ltrkit/norm"
	"github.com/rushteam/ltrkit/search"
)

// Extractor 把特征定义变成某个 segment 上的 Scorer。
// 特征在该 segment 上不适用时返回 (nil, nil)，引擎会使用默认值。
type Extractor interface {
	Scorer(ctx context.Context, seg *search.Segment, req *Request) (search.Scorer, error)
}

// EFIValidator 是可选能力：在模型绑定阶段校验请求的 EFI。
type EFIValidator interface {
	ValidateEFI(efi core.EFI) error
}

// Prefetcher 是 Scorer 的可选能力：在抽取前一次性批量加载给定文档的取值。
type Prefetcher interface {
	Prefetch(ctx context.Context, docs []int) error
}

// Request 是一次抽取的请求级输入，所有 segment 共享且只读。
type Request struct {
	EFI core.EFI
	// Base 是已针对当前 Reader 改写过的首轮查询，供 original_score / expression 使用
	Base search.Query
}

// Definition 是特征的可序列化定义（YAML/JSON）。
type Definition struct {
	Name    string         `json:"name" yaml:"name"`
	Type    string         `json:"type" yaml:"type"`
	Params  map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Default float64        `json:"default,omitempty" yaml:"default,omitempty"`
	Norm    *norm.Spec     `json:"norm,omitempty" yaml:"norm,omitempty"`
}

// Deps 是特征类型可能需要的外部依赖。
type Deps struct {
	KV    core.KeyValueStore
	Feast feast.Client
}

// Spec 是构建好的特征，特征库 Finalize 后不可变。
type Spec struct {
	Name    string
	Type    string
	Params  map[string]any
	Default float64
	Norm    norm.Normalizer

	extractor Extractor
}

// Extractor 返回特征的抽取器
func (s *Spec) Extractor() Extractor { return s.extractor }

// Definition 返回特征的可序列化定义
func (s *Spec) Definition() Definition {
	def := Definition{Name: s.Name, Type: s.Type, Params: s.Params, Default: s.Default}
	if !norm.IsIdentity(s.Norm) {
		ns := norm.Describe(s.Norm)
		def.Norm = &ns
	}
	return def
}

// ValidateEFI 若抽取器要求 EFI，则校验之
func (s *Spec) ValidateEFI(efi core.EFI) error {
	if v, ok := s.extractor.(EFIValidator); ok {
		return v.ValidateEFI(efi)
	}
	return nil
}

// Factory 根据定义构建抽取器
type Factory func(def Definition, deps Deps) (Extractor, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterType 注册特征类型，同名覆盖。内置类型在 init 中注册。
func RegisterType(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[typ] = f
}

// Types 返回已注册的特征类型（有序）
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewSpec 按定义构建特征，类型未知或参数非法时返回配置错误。
func NewSpec(def Definition, deps Deps) (*Spec, error) {
	if def.Name == "" {
		return nil, core.ConfigErrorf(core.ModuleFeature, "feature name is required")
	}
	mu.RLock()
	f, ok := factories[def.Type]
	mu.RUnlock()
	if !ok {
		return nil, core.ConfigErrorf(core.ModuleFeature, "feature %s: unknown type %q", def.Name, def.Type)
	}
	ex, err := f(def, deps)
	if err != nil {
		if core.IsDomainError(err) {
			return nil, err
		}
		return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeInternalError, err, "feature %s", def.Name)
	}

	n := norm.Identity
	if def.Norm != nil {
		n, err = def.Norm.Build()
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeInternalError, err, "feature %s: normalizer", def.Name)
		}
	}
	return &Spec{
		Name:      def.Name,
		Type:      def.Type,
		Params:    def.Params,
		Default:   def.Default,
		Norm:      n,
		extractor: ex,
	}, nil
}

// MustSpec 同 NewSpec，出错时 panic，用于测试与静态定义。
func MustSpec(def Definition, deps Deps) *Spec {
	s, err := NewSpec(def, deps)
	if err != nil {
		panic(err)
	}
	return s
}

var templateRe = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// efiTemplate 判断参数是否为 "${key}" 形式的 EFI 模板
func efiTemplate(raw string) (string, bool) {
	m := templateRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}
