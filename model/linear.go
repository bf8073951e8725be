package model

import (
	"fmt"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
)

// EFIWeightsKey 是请求级线性权重的 EFI 参数名，值为逗号分隔的数字
const EFIWeightsKey = "w"

// Linear 线性模型：score = Σ weight_i * x_i。
//
// 参数：
//
//	weights:     按特征声明顺序的列表，或 特征名 -> 权重 的映射
//	efi_weights: true 时权重由请求 EFI "w" 提供，配置中的 weights 可省略
type Linear struct {
	Weights    []float64
	EFIWeights bool
}

func newLinear(m *Model) (Algorithm, error) {
	l := &Linear{EFIWeights: conv.ConfigGet(m.Params(), "efi_weights", false)}
	raw, ok := m.Params()["weights"]
	if !ok {
		if l.EFIWeights {
			return l, nil
		}
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: missing weights", m.Name())
	}
	w, err := parseWeights(m, raw)
	if err != nil {
		return nil, err
	}
	l.Weights = w
	return l, nil
}

// parseWeights 解析列表或映射形式的权重，结果按模型特征顺序排列
func parseWeights(m *Model, raw any) ([]float64, error) {
	switch v := raw.(type) {
	case map[string]any:
		names := m.FeatureNames()
		out := make([]float64, len(names))
		for i, name := range names {
			f, ok := conv.ToFloat64(v[name])
			if !ok {
				return nil, core.ConfigErrorf(core.ModuleModel, "model %s lacks weight for feature %s", m.Name(), name)
			}
			out[i] = f
		}
		if len(v) != len(names) {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: %d weights for %d features", m.Name(), len(v), len(names))
		}
		return out, nil
	default:
		w, err := conv.SliceAnyToFloat64(raw)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleModel, core.ErrorCodeInternalError, err, "model %s: invalid weights", m.Name())
		}
		return w, nil
	}
}

func (l *Linear) Validate(m *Model) error {
	if l.Weights == nil && l.EFIWeights {
		return nil
	}
	if len(l.Weights) != m.NumFeatures() {
		return core.ConfigErrorf(core.ModuleModel, "model %s: %d weights for %d features", m.Name(), len(l.Weights), m.NumFeatures())
	}
	return nil
}

// BindEFI 在 efi_weights 开启时用请求中的 "w" 生成本次请求的权重。
// 缺少 "w" 或无法解析是请求错误，数量与特征不一致是配置错误。
func (l *Linear) BindEFI(m *Model, efi core.EFI) (Algorithm, error) {
	if !l.EFIWeights {
		return l, nil
	}
	raw, ok := efi.Get(EFIWeightsKey)
	if !ok || raw == "" {
		if l.Weights != nil {
			return l, nil
		}
		return nil, core.BadRequestf(core.ModuleModel, "missing linear model weights for %s (efi.%s)", m.Name(), EFIWeightsKey)
	}
	w, err := conv.ParseFloatList(raw)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleModel, core.ErrorCodeBadRequest, err, "model %s: invalid efi.%s", m.Name(), EFIWeightsKey)
	}
	bound := &Linear{Weights: w}
	if err := bound.Validate(m); err != nil {
		return nil, err
	}
	return bound, nil
}

func (l *Linear) Score(values []float64) float64 {
	score := 0.0
	for i, w := range l.Weights {
		score += w * values[i]
	}
	return score
}

func (l *Linear) Explain(m *Model, score float64, features []*core.Explanation) *core.Explanation {
	root := core.NewExplanation(score, fmt.Sprintf("%s model, sum of:", m.Type()))
	for i, fe := range features {
		w := l.Weights[i]
		root.AddDetail(core.NewExplanation(w*fe.Value,
			"weight("+strconv.FormatFloat(w, 'g', -1, 64)+") * "+fe.Description+"("+strconv.FormatFloat(fe.Value, 'g', -1, 64)+")",
			fe))
	}
	return root
}
