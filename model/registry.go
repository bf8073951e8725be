package model

import (
	"sort"
	"sync"

	"github.com/rushteam/ltrkit/core"
)

// Algorithm 是模型算法的能力接口。
type Algorithm interface {
	// Validate 校验算法与模型定义是否匹配（如权重数量），失败即配置错误
	Validate(m *Model) error
	// Score 对归一化后的模型特征向量打分
	Score(values []float64) float64
	// Explain 组合解释树，features 为归一化后的模型特征解释（声明顺序）
	Explain(m *Model, score float64, features []*core.Explanation) *core.Explanation
}

// EFIBinder 是可选能力：算法需要按请求 EFI 生成本次请求使用的算法实例（如请求级权重）。
type EFIBinder interface {
	BindEFI(m *Model, efi core.EFI) (Algorithm, error)
}

// Factory 根据模型（已解析特征与参数）构建算法
type Factory func(m *Model) (Algorithm, error)

// 内置算法类型
const (
	TypeLinear                = "linear"
	TypeLogistic              = "logistic"
	TypeMultipleAdditiveTrees = "multiple_additive_trees"
	TypeNeuralNetwork         = "neural_network"
)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func init() {
	Register(TypeLinear, newLinear)
	Register(TypeLogistic, newLogistic)
	Register(TypeMultipleAdditiveTrees, newTrees)
	Register(TypeNeuralNetwork, newNeuralNetwork)
}

// Register 注册算法类型，同名覆盖。
func Register(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[typ] = f
}

func lookup(typ string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[typ]
	return f, ok
}

// Types 返回已注册的算法类型（有序）
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
