// Package norm 提供特征归一化：在打分前逐特征对原始值做纯函数变换。
//
// 归一化器无状态、无副作用；是否幂等由模型作者保证，框架不做校验。
package norm

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
)

// Normalizer 是单值归一化接口
type Normalizer interface {
	// Type 返回归一化器类型名（identity / standard / minmax / log1p / sqrt）
	Type() string
	// Params 返回构建参数，用于模型相等性判断与持久化
	Params() map[string]any
	// Normalize 归一化单个值
	Normalize(value float64) float64
	// Explain 在特征解释外包一层归一化说明
	Explain(e *core.Explanation) *core.Explanation
}

// 归一化器类型
const (
	TypeIdentity = "identity"
	TypeStandard = "standard"
	TypeMinMax   = "minmax"
	TypeLog1p    = "log1p"
	TypeSqrt     = "sqrt"
)

// Identity 是默认归一化器：计算与解释都不做任何改变。
var Identity Normalizer = identity{}

type identity struct{}

func (identity) Type() string                                  { return TypeIdentity }
func (identity) Params() map[string]any                        { return nil }
func (identity) Normalize(v float64) float64                   { return v }
func (identity) Explain(e *core.Explanation) *core.Explanation { return e }

// IsIdentity 判断是否为恒等归一化器
func IsIdentity(n Normalizer) bool {
	return n == nil || n.Type() == TypeIdentity
}

// Standard Z-score 标准化
// 公式: z = (x - avg) / std
type Standard struct {
	Avg float64
	Std float64
}

// NewStandard 创建 Z-score 标准化器，std 必须大于 0
func NewStandard(avg, std float64) (*Standard, error) {
	if std <= 0 {
		return nil, core.ConfigErrorf(core.ModuleNorm, "standard normalizer: std must be > 0, got %g", std)
	}
	return &Standard{Avg: avg, Std: std}, nil
}

func (n *Standard) Type() string { return TypeStandard }

func (n *Standard) Params() map[string]any {
	return map[string]any{"avg": n.Avg, "std": n.Std}
}

func (n *Standard) Normalize(v float64) float64 {
	return (v - n.Avg) / n.Std
}

func (n *Standard) Explain(e *core.Explanation) *core.Explanation {
	return core.NewExplanation(n.Normalize(e.Value),
		fmt.Sprintf("standard normalizer (avg=%g, std=%g)", n.Avg, n.Std), e)
}

// MinMax 归一化
// 公式: x' = (x - min) / (max - min)
type MinMax struct {
	Min float64
	Max float64
}

// NewMinMax 创建 Min-Max 归一化器，max 必须大于 min
func NewMinMax(min, max float64) (*MinMax, error) {
	if max <= min {
		return nil, core.ConfigErrorf(core.ModuleNorm, "minmax normalizer: max (%g) must be > min (%g)", max, min)
	}
	return &MinMax{Min: min, Max: max}, nil
}

func (n *MinMax) Type() string { return TypeMinMax }

func (n *MinMax) Params() map[string]any {
	return map[string]any{"min": n.Min, "max": n.Max}
}

func (n *MinMax) Normalize(v float64) float64 {
	return (v - n.Min) / (n.Max - n.Min)
}

func (n *MinMax) Explain(e *core.Explanation) *core.Explanation {
	return core.NewExplanation(n.Normalize(e.Value),
		fmt.Sprintf("minmax normalizer (min=%g, max=%g)", n.Min, n.Max), e)
}

// Log1p 变换
// 公式: x' = log(x + 1)，负值视为 0
type Log1p struct{}

func (Log1p) Type() string           { return TypeLog1p }
func (Log1p) Params() map[string]any { return nil }

func (Log1p) Normalize(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Log1p(v)
}

func (n Log1p) Explain(e *core.Explanation) *core.Explanation {
	return core.NewExplanation(n.Normalize(e.Value), "log1p normalizer", e)
}

// Sqrt 平方根变换，负值视为 0
type Sqrt struct{}

func (Sqrt) Type() string           { return TypeSqrt }
func (Sqrt) Params() map[string]any { return nil }

func (Sqrt) Normalize(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

func (n Sqrt) Explain(e *core.Explanation) *core.Explanation {
	return core.NewExplanation(n.Normalize(e.Value), "sqrt normalizer", e)
}

// Factory 根据参数构建归一化器
type Factory func(params map[string]any) (Normalizer, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		TypeIdentity: func(map[string]any) (Normalizer, error) { return Identity, nil },
		TypeStandard: func(p map[string]any) (Normalizer, error) {
			return NewStandard(conv.ConfigGetFloat64(p, "avg", 0), conv.ConfigGetFloat64(p, "std", 1))
		},
		TypeMinMax: func(p map[string]any) (Normalizer, error) {
			return NewMinMax(conv.ConfigGetFloat64(p, "min", 0), conv.ConfigGetFloat64(p, "max", 1))
		},
		TypeLog1p: func(map[string]any) (Normalizer, error) { return Log1p{}, nil },
		TypeSqrt:  func(map[string]any) (Normalizer, error) { return Sqrt{}, nil },
	}
)

// Register 注册自定义归一化器类型，同名覆盖。
func Register(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[typ] = f
}

// Types 返回已注册的类型（有序）
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

// New 按类型与参数构建归一化器；空类型返回 Identity。
func New(typ string, params map[string]any) (Normalizer, error) {
	if typ == "" {
		return Identity, nil
	}
	mu.RLock()
	f, ok := factories[typ]
	mu.RUnlock()
	if !ok {
		return nil, core.ConfigErrorf(core.ModuleNorm, "unknown normalizer type %q", typ)
	}
	return f(params)
}

// Spec 是归一化器的可序列化描述
type Spec struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Build 按描述构建
func (s Spec) Build() (Normalizer, error) {
	return New(s.Type, s.Params)
}

// Describe 返回归一化器的描述
func Describe(n Normalizer) Spec {
	if n == nil {
		return Spec{Type: TypeIdentity}
	}
	return Spec{Type: n.Type(), Params: n.Params()}
}
