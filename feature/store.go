package feature

import (
	"github.com/rushteam/ltrkit/core"
)

// Store 是有序、名称唯一的特征集合；特征在 Store 中的位置即其 id。
// Finalize 之后不可再修改，可被多个请求并发只读使用。
type Store struct {
	name      string
	specs     []*Spec
	index     map[string]int
	finalized bool
}

// NewStore 创建特征库，空名称使用默认特征库名
func NewStore(name string) *Store {
	if name == "" {
		name = core.DefaultFeatureStore
	}
	return &Store{name: name, index: make(map[string]int)}
}

// Name 返回特征库名称
func (s *Store) Name() string { return s.name }

// Add 追加特征
func (s *Store) Add(spec *Spec) error {
	if s.finalized {
		return core.ConfigErrorf(core.ModuleFeature, "feature store %s is finalized", s.name)
	}
	if _, ok := s.index[spec.Name]; ok {
		return core.ConfigErrorf(core.ModuleFeature, "feature store %s: duplicate feature %s", s.name, spec.Name)
	}
	s.index[spec.Name] = len(s.specs)
	s.specs = append(s.specs, spec)
	return nil
}

// Finalize 冻结特征库
func (s *Store) Finalize() { s.finalized = true }

// Finalized 返回是否已冻结
func (s *Store) Finalized() bool { return s.finalized }

// Len 返回特征数
func (s *Store) Len() int { return len(s.specs) }

// Features 返回全部特征（按 id 顺序）的副本
func (s *Store) Features() []*Spec {
	out := make([]*Spec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Names 返回全部特征名（按 id 顺序）
func (s *Store) Names() []string {
	out := make([]string, len(s.specs))
	for i, spec := range s.specs {
		out[i] = spec.Name
	}
	return out
}

// Lookup 按名称查找特征及其 id
func (s *Store) Lookup(name string) (*Spec, int, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, -1, false
	}
	return s.specs[i], i, true
}

// At 按 id 返回特征
func (s *Store) At(i int) *Spec { return s.specs[i] }

// BuildStore 由定义列表构建并冻结特征库
func BuildStore(name string, defs []Definition, deps Deps) (*Store, error) {
	st := NewStore(name)
	for _, def := range defs {
		spec, err := NewSpec(def, deps)
		if err != nil {
			return nil, err
		}
		if err := st.Add(spec); err != nil {
			return nil, err
		}
	}
	st.Finalize()
	return st, nil
}
