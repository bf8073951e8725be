// Package model 实现打分模型：消费归一化后的特征向量，输出分数与解释树。
//
// 模型由 Config 构建，算法（linear / logistic / multiple_additive_trees / 自定义）通过注册表插拔。
// 构建失败（权重数量不符、特征不存在等）是配置错误，在任何文档被打分之前返回。
package model

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/norm"
)

// Config 是模型的可序列化定义（YAML/JSON）。
type Config struct {
	Name     string               `json:"name" yaml:"name"`
	Type     string               `json:"type" yaml:"type"`
	Store    string               `json:"store,omitempty" yaml:"store,omitempty"`
	Features []string             `json:"features" yaml:"features"`
	Norms    map[string]norm.Spec `json:"norms,omitempty" yaml:"norms,omitempty"` // 特征名 -> 归一化器，缺省使用特征自身的
	Params   map[string]any       `json:"params,omitempty" yaml:"params,omitempty"`
}

// Model 是构建好的打分模型，不可变，可被并发请求共享。
type Model struct {
	name        string
	typ         string
	storeName   string
	features    []*feature.Spec
	featureIdx  []int
	allFeatures []*feature.Spec
	norms       []norm.Normalizer
	params      map[string]any
	algo        Algorithm

	canonical []byte
	hash      uint64
}

// New 基于特征库 st 构建模型。
func New(cfg Config, st *feature.Store) (*Model, error) {
	if cfg.Name == "" {
		return nil, core.ConfigErrorf(core.ModuleModel, "model name is required")
	}
	if st == nil {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: feature store is required", cfg.Name)
	}
	storeName := cfg.Store
	if storeName == "" {
		storeName = core.DefaultFeatureStore
	}
	if storeName != st.Name() {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: declared store %s, got %s", cfg.Name, storeName, st.Name())
	}
	if len(cfg.Features) == 0 {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: no features", cfg.Name)
	}

	m := &Model{
		name:        cfg.Name,
		typ:         cfg.Type,
		storeName:   storeName,
		allFeatures: st.Features(),
		params:      cfg.Params,
	}
	seen := make(map[string]bool, len(cfg.Features))
	for _, name := range cfg.Features {
		if seen[name] {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: duplicate feature %s", cfg.Name, name)
		}
		seen[name] = true
		spec, idx, ok := st.Lookup(name)
		if !ok {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: feature %s not in store %s", cfg.Name, name, st.Name())
		}
		n := spec.Norm
		if ns, ok := cfg.Norms[name]; ok {
			built, err := ns.Build()
			if err != nil {
				return nil, core.WrapDomainError(core.ModuleModel, core.ErrorCodeInternalError, err, "model %s: normalizer for %s", cfg.Name, name)
			}
			n = built
		}
		if n == nil {
			n = norm.Identity
		}
		m.features = append(m.features, spec)
		m.featureIdx = append(m.featureIdx, idx)
		m.norms = append(m.norms, n)
	}
	for name := range cfg.Norms {
		if !seen[name] {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: normalizer for unknown feature %s", cfg.Name, name)
		}
	}

	factory, ok := lookup(cfg.Type)
	if !ok {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: unknown type %q", cfg.Name, cfg.Type)
	}
	algo, err := factory(m)
	if err != nil {
		return nil, asConfigError(err, "model %s", cfg.Name)
	}
	if err := algo.Validate(m); err != nil {
		return nil, asConfigError(err, "model %s", cfg.Name)
	}
	m.algo = algo

	m.canonical = m.canonicalForm()
	h := fnv.New64a()
	_, _ = h.Write(m.canonical)
	m.hash = h.Sum64()
	return m, nil
}

func asConfigError(err error, format string, args ...any) error {
	if core.IsDomainError(err) {
		return err
	}
	return core.WrapDomainError(core.ModuleModel, core.ErrorCodeInternalError, err, format, args...)
}

// Name 返回模型名
func (m *Model) Name() string { return m.name }

// Type 返回算法类型
func (m *Model) Type() string { return m.typ }

// FeatureStoreName 返回特征库名
func (m *Model) FeatureStoreName() string { return m.storeName }

// Features 返回模型特征（声明顺序）
func (m *Model) Features() []*feature.Spec { return m.features }

// FeatureNames 返回模型特征名（声明顺序）
func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.features))
	for i, f := range m.features {
		out[i] = f.Name
	}
	return out
}

// FeatureIndex 返回模型特征在特征全集中的下标
func (m *Model) FeatureIndex() []int { return m.featureIdx }

// AllFeatures 返回特征全集（特征库顺序）
func (m *Model) AllFeatures() []*feature.Spec { return m.allFeatures }

// Norms 返回每个模型特征的归一化器
func (m *Model) Norms() []norm.Normalizer { return m.norms }

// Params 返回模型参数
func (m *Model) Params() map[string]any { return m.params }

// Algorithm 返回模型算法
func (m *Model) Algorithm() Algorithm { return m.algo }

// NumFeatures 返回模型特征数
func (m *Model) NumFeatures() int { return len(m.features) }

func (m *Model) String() string {
	return fmt.Sprintf("%s(name=%s)", m.typ, m.name)
}

// Select 从特征全集向量中取出模型特征向量（新切片）
func (m *Model) Select(all []float64) []float64 {
	out := make([]float64, len(m.featureIdx))
	for i, idx := range m.featureIdx {
		out[i] = all[idx]
	}
	return out
}

// NormalizeInPlace 对模型特征向量逐项归一化
func (m *Model) NormalizeInPlace(values []float64) error {
	if len(values) != len(m.norms) {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeInternalError,
			fmt.Sprintf("model %s: need a normalizer for every feature (values=%d, norms=%d)", m.name, len(values), len(m.norms)))
	}
	for i, n := range m.norms {
		values[i] = n.Normalize(values[i])
	}
	return nil
}

// NormalizeExplanations 用每个特征的归一化器包装特征解释；恒等归一化不增加层级。
func (m *Model) NormalizeExplanations(raw []*core.Explanation) []*core.Explanation {
	out := make([]*core.Explanation, len(raw))
	for i, e := range raw {
		out[i] = m.norms[i].Explain(e)
	}
	return out
}

// Score 使用模型默认算法对归一化向量打分
func (m *Model) Score(normalized []float64) float64 {
	return m.algo.Score(normalized)
}

// Equal 判断两个模型是否等价：名称、类型、特征、归一化器、参数与特征库均相同
func (m *Model) Equal(other *Model) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil {
		return false
	}
	return m.hash == other.hash && string(m.canonical) == string(other.canonical)
}

// Hash 返回与 Equal 一致的哈希
func (m *Model) Hash() uint64 { return m.hash }

type canonicalModel struct {
	Name     string               `json:"name"`
	Type     string               `json:"type"`
	Store    string               `json:"store"`
	Features []feature.Definition `json:"features"`
	Norms    []norm.Spec          `json:"norms"`
	Params   map[string]any       `json:"params"`
}

// canonicalForm 生成稳定的序列化形式（encoding/json 对 map key 排序）
func (m *Model) canonicalForm() []byte {
	c := canonicalModel{
		Name:   m.name,
		Type:   m.typ,
		Store:  m.storeName,
		Params: m.params,
	}
	for i, f := range m.features {
		c.Features = append(c.Features, f.Definition())
		c.Norms = append(c.Norms, norm.Describe(m.norms[i]))
	}
	b, err := json.Marshal(c)
	if err != nil {
		// 参数中含无法序列化的值时退化为格式化输出
		return []byte(fmt.Sprintf("%#v", c))
	}
	return b
}
