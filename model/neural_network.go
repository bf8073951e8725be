package model

import (
	"fmt"
	"math"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
)

// NeuralNetwork 全连接前馈网络，最后一层输出单个分数。
//
// 参数格式（matrix 每行是一个神经元对上一层输出的权重）：
//
//	layers:
//	  - matrix: [[1, 2], [3, 4]]
//	    bias: [0.1, 0.2]
//	    activation: relu
//	  - matrix: [[1, 1]]
//	    bias: [0]
//	    activation: identity
type NeuralNetwork struct {
	Layers []*Layer
}

// Layer 是网络的一层
type Layer struct {
	Matrix     [][]float64
	Bias       []float64
	Activation string
	activate   func(float64) float64
}

// 可用的激活函数
var activations = map[string]func(float64) float64{
	"identity": func(x float64) float64 { return x },
	"relu": func(x float64) float64 {
		if x > 0 {
			return x
		}
		return 0
	},
	"leakyrelu": func(x float64) float64 {
		if x > 0 {
			return x
		}
		return 0.01 * x
	},
	"sigmoid": sigmoid,
	"tanh":    math.Tanh,
}

func newNeuralNetwork(m *Model) (Algorithm, error) {
	raw, ok := m.Params()["layers"].([]any)
	if !ok || len(raw) == 0 {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: layers must be a non-empty list", m.Name())
	}
	nn := &NeuralNetwork{}
	for i, r := range raw {
		lm, ok := r.(map[string]any)
		if !ok {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: layer %d is not a map", m.Name(), i)
		}
		layer, err := parseLayer(lm)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleModel, core.ErrorCodeInternalError, err, "model %s: layer %d", m.Name(), i)
		}
		nn.Layers = append(nn.Layers, layer)
	}
	return nn, nil
}

func parseLayer(raw map[string]any) (*Layer, error) {
	rows, ok := raw["matrix"].([]any)
	if !ok || len(rows) == 0 {
		return nil, fmt.Errorf("matrix must be a non-empty list of rows")
	}
	l := &Layer{Activation: conv.ConfigGet(raw, "activation", "identity")}
	for i, row := range rows {
		r, err := conv.SliceAnyToFloat64(row)
		if err != nil {
			return nil, fmt.Errorf("matrix row %d: %w", i, err)
		}
		l.Matrix = append(l.Matrix, r)
	}
	if b, ok := raw["bias"]; ok {
		bias, err := conv.SliceAnyToFloat64(b)
		if err != nil {
			return nil, fmt.Errorf("bias: %w", err)
		}
		l.Bias = bias
	} else {
		l.Bias = make([]float64, len(l.Matrix))
	}
	if l.activate, ok = activations[l.Activation]; !ok {
		return nil, fmt.Errorf("unknown activation %q", l.Activation)
	}
	return l, nil
}

// Validate 校验各层维度：第一层输入为模型特征数，相邻层首尾相接，最后一层只有一个输出
func (nn *NeuralNetwork) Validate(m *Model) error {
	inputs := m.NumFeatures()
	for i, l := range nn.Layers {
		if len(l.Bias) != len(l.Matrix) {
			return core.ConfigErrorf(core.ModuleModel, "model %s: layer %d has %d biases for %d outputs", m.Name(), i, len(l.Bias), len(l.Matrix))
		}
		for j, row := range l.Matrix {
			if len(row) != inputs {
				return core.ConfigErrorf(core.ModuleModel, "model %s: layer %d row %d has %d weights for %d inputs", m.Name(), i, j, len(row), inputs)
			}
		}
		inputs = len(l.Matrix)
	}
	if inputs != 1 {
		return core.ConfigErrorf(core.ModuleModel, "model %s: last layer must have 1 output, got %d", m.Name(), inputs)
	}
	return nil
}

func (l *Layer) forward(in []float64) []float64 {
	out := make([]float64, len(l.Matrix))
	for j, row := range l.Matrix {
		sum := l.Bias[j]
		for k, w := range row {
			sum += w * in[k]
		}
		out[j] = l.activate(sum)
	}
	return out
}

func (nn *NeuralNetwork) Score(values []float64) float64 {
	current := values
	for _, l := range nn.Layers {
		current = l.forward(current)
	}
	return current[0]
}

func (nn *NeuralNetwork) Explain(m *Model, score float64, features []*core.Explanation) *core.Explanation {
	desc := fmt.Sprintf("%s model (%d layers) applied to features:", m.Type(), len(nn.Layers))
	return core.NewExplanation(score, desc, features...)
}
