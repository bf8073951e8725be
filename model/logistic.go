package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
)

// Logistic 逻辑回归模型，输出 (0, 1) 区间的概率值。
//
// 预测原理：
// 1. 线性加权求和: z = bias + Σ weight_i * x_i
// 2. Sigmoid 变换: score = 1 / (1 + exp(-z))
type Logistic struct {
	Bias    float64
	Weights []float64
}

func newLogistic(m *Model) (Algorithm, error) {
	raw, ok := m.Params()["weights"]
	if !ok {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: missing weights", m.Name())
	}
	w, err := parseWeights(m, raw)
	if err != nil {
		return nil, err
	}
	return &Logistic{
		Bias:    conv.ConfigGetFloat64(m.Params(), "bias", 0),
		Weights: w,
	}, nil
}

func (l *Logistic) Validate(m *Model) error {
	if len(l.Weights) != m.NumFeatures() {
		return core.ConfigErrorf(core.ModuleModel, "model %s: %d weights for %d features", m.Name(), len(l.Weights), m.NumFeatures())
	}
	return nil
}

func (l *Logistic) linear(values []float64) float64 {
	z := l.Bias
	for i, w := range l.Weights {
		z += w * values[i]
	}
	return z
}

func (l *Logistic) Score(values []float64) float64 {
	return sigmoid(l.linear(values))
}

func (l *Logistic) Explain(m *Model, score float64, features []*core.Explanation) *core.Explanation {
	z := l.Bias
	sum := core.NewExplanation(0, "sum of:", core.NewExplanation(l.Bias, "bias"))
	for i, fe := range features {
		w := l.Weights[i]
		z += w * fe.Value
		sum.AddDetail(core.NewExplanation(w*fe.Value,
			"weight("+strconv.FormatFloat(w, 'g', -1, 64)+") * "+fe.Description+"("+strconv.FormatFloat(fe.Value, 'g', -1, 64)+")",
			fe))
	}
	sum.Value = z
	return core.NewExplanation(score, fmt.Sprintf("%s model, sigmoid of:", m.Type()), sum)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
