package model

import (
	"hash/fnv"
	"sort"

	"github.com/rushteam/ltrkit/core"
)

// Bound 是绑定了请求 EFI 与请求参数的模型，一次请求一个实例。
type Bound struct {
	model  *Model
	algo   Algorithm
	efi    core.EFI
	params map[string]string
}

// Bind 把模型绑定到一次请求：校验所有特征对 EFI 的要求，并让支持的算法读取请求级参数。
// 返回的错误都在任何文档打分之前出现。
func (m *Model) Bind(efi core.EFI, params map[string]string) (*Bound, error) {
	efi = efi.Clone()
	for _, spec := range m.allFeatures {
		if err := spec.ValidateEFI(efi); err != nil {
			return nil, err
		}
	}
	algo := m.algo
	if b, ok := algo.(EFIBinder); ok {
		var err error
		if algo, err = b.BindEFI(m, efi); err != nil {
			return nil, err
		}
	}
	return &Bound{model: m, algo: algo, efi: efi, params: params}, nil
}

// Model 返回模型
func (b *Bound) Model() *Model { return b.model }

// EFI 返回请求 EFI
func (b *Bound) EFI() core.EFI { return b.efi }

// Params 返回请求参数
func (b *Bound) Params() map[string]string { return b.params }

// Algorithm 返回本次请求使用的算法（可能带请求级权重）
func (b *Bound) Algorithm() Algorithm { return b.algo }

// Score 对全集特征向量打分：取出模型特征、归一化、计算分数。all 不会被修改。
func (b *Bound) Score(all []float64) (float64, error) {
	v := b.model.Select(all)
	if err := b.model.NormalizeInPlace(v); err != nil {
		return 0, err
	}
	return b.algo.Score(v), nil
}

// Explain 基于全集特征解释（未归一化）生成模型解释树
func (b *Bound) Explain(all []*core.Explanation) (*core.Explanation, error) {
	raw := make([]*core.Explanation, len(b.model.featureIdx))
	v := make([]float64, len(b.model.featureIdx))
	for i, idx := range b.model.featureIdx {
		raw[i] = all[idx]
		v[i] = all[idx].Value
	}
	if err := b.model.NormalizeInPlace(v); err != nil {
		return nil, err
	}
	score := b.algo.Score(v)
	return b.algo.Explain(b.model, score, b.model.NormalizeExplanations(raw)), nil
}

// Equal 判断模型与 EFI 是否都相同
func (b *Bound) Equal(other *Bound) bool {
	if b == other {
		return true
	}
	if b == nil || other == nil {
		return false
	}
	if !b.model.Equal(other.model) || len(b.efi) != len(other.efi) {
		return false
	}
	for k, v := range b.efi {
		if ov, ok := other.efi[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Hash 返回与 Equal 一致的哈希
func (b *Bound) Hash() uint64 {
	h := fnv.New64a()
	keys := make([]string, 0, len(b.efi))
	for k := range b.efi {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(b.efi[k]))
		_, _ = h.Write([]byte{0})
	}
	return b.model.Hash()*31 + h.Sum64()
}
