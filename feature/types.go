package feature

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
	"github.com/rushteam/ltrkit/search"
)

// 内置特征类型
const (
	TypeValue         = "value"
	TypeField         = "field"
	TypeTerm          = "term"
	TypeOriginalScore = "original_score"
	TypeExpression    = "expression"
	TypeKV            = "kv"
	TypeFeast         = "feast"
)

func init() {
	RegisterType(TypeValue, newValueExtractor)
	RegisterType(TypeField, newFieldExtractor)
	RegisterType(TypeTerm, newTermExtractor)
	RegisterType(TypeOriginalScore, func(Definition, Deps) (Extractor, error) { return originalScore{}, nil })
	RegisterType(TypeExpression, newExpressionExtractor)
	RegisterType(TypeKV, newKVExtractor)
	RegisterType(TypeFeast, newFeastExtractor)
}

func requireString(def Definition, key string) (string, error) {
	s := conv.ConfigGet(def.Params, key, "")
	if s == "" {
		return "", core.ConfigErrorf(core.ModuleFeature, "feature %s: param %q is required", def.Name, key)
	}
	return s, nil
}

// valueExtractor 对所有文档返回同一个值：常量，或 "${key}" 形式引用的 EFI。
//
// 参数：
//   - value: 数值或 "${efiKey}"
//   - required: EFI 缺失时是否在绑定阶段报错（默认 false，缺失时使用默认值）
type valueExtractor struct {
	name     string
	constant float64
	efiKey   string
	required bool
}

func newValueExtractor(def Definition, _ Deps) (Extractor, error) {
	ex := &valueExtractor{
		name:     def.Name,
		required: conv.ConfigGet(def.Params, "required", false),
	}
	raw, ok := def.Params["value"]
	if !ok {
		return nil, core.ConfigErrorf(core.ModuleFeature, "feature %s: param \"value\" is required", def.Name)
	}
	if s, isStr := raw.(string); isStr {
		if key, tmpl := efiTemplate(s); tmpl {
			ex.efiKey = key
			return ex, nil
		}
	}
	f, ok := conv.ToFloat64(raw)
	if !ok {
		return nil, core.ConfigErrorf(core.ModuleFeature, "feature %s: value %v is not a number", def.Name, raw)
	}
	ex.constant = f
	return ex, nil
}

func (v *valueExtractor) ValidateEFI(efi core.EFI) error {
	if v.efiKey == "" {
		return nil
	}
	raw, ok := efi.Get(v.efiKey)
	if !ok {
		if v.required {
			return core.BadRequestf(core.ModuleFeature, "feature %s requires efi.%s", v.name, v.efiKey)
		}
		return nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return core.BadRequestf(core.ModuleFeature, "feature %s: efi.%s=%q is not a number", v.name, v.efiKey, raw)
	}
	return nil
}

func (v *valueExtractor) Scorer(_ context.Context, seg *search.Segment, req *Request) (search.Scorer, error) {
	value := v.constant
	if v.efiKey != "" {
		raw, ok := req.EFI.Get(v.efiKey)
		if !ok {
			return nil, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("efi.%s=%q: %w", v.efiKey, raw, err)
		}
		value = f
	}
	return search.NewDenseScorer(seg.MaxDoc(), func(int) (float64, error) { return value, nil }), nil
}

// fieldExtractor 读取文档的数值字段，字段缺失的文档不被匹配（稀疏特征）。
type fieldExtractor struct {
	field string
}

func newFieldExtractor(def Definition, _ Deps) (Extractor, error) {
	field, err := requireString(def, "field")
	if err != nil {
		return nil, err
	}
	return &fieldExtractor{field: field}, nil
}

func (f *fieldExtractor) Scorer(ctx context.Context, seg *search.Segment, _ *Request) (search.Scorer, error) {
	return (&search.FieldValueQuery{Field: f.field}).Scorer(ctx, seg)
}

// termExtractor 是词在字段中的 BM25 分数；term 可以是 "${efiKey}"。
type termExtractor struct {
	field  string
	term   string
	efiKey string
}

func newTermExtractor(def Definition, _ Deps) (Extractor, error) {
	field, err := requireString(def, "field")
	if err != nil {
		return nil, err
	}
	term, err := requireString(def, "term")
	if err != nil {
		return nil, err
	}
	ex := &termExtractor{field: field, term: term}
	if key, ok := efiTemplate(term); ok {
		ex.efiKey = key
	}
	return ex, nil
}

func (t *termExtractor) Scorer(ctx context.Context, seg *search.Segment, req *Request) (search.Scorer, error) {
	term := t.term
	if t.efiKey != "" {
		v, ok := req.EFI.Get(t.efiKey)
		if !ok {
			return nil, nil
		}
		term = v
	}
	return search.NewTermQuery(t.field, term).Scorer(ctx, seg)
}

// originalScore 返回首轮查询给文档的分数。
type originalScore struct{}

func (originalScore) Scorer(ctx context.Context, seg *search.Segment, req *Request) (search.Scorer, error) {
	if req == nil || req.Base == nil {
		return nil, nil
	}
	return req.Base.Scorer(ctx, seg)
}
