package feature

import (
	"context"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/dsl"
	"github.com/rushteam/ltrkit/search"
)

// expressionExtractor 用 CEL 表达式计算特征，变量见 dsl.Program。
//
// 参数：
//   - expr: 表达式，例如 `"price" in doc ? doc.price * 0.01 : 0.0`
type expressionExtractor struct {
	prg *dsl.Program
}

func newExpressionExtractor(def Definition, _ Deps) (Extractor, error) {
	expr, err := requireString(def, "expr")
	if err != nil {
		return nil, err
	}
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleFeature, core.ErrorCodeInternalError, err, "feature %s: expr %q", def.Name, expr)
	}
	return &expressionExtractor{prg: prg}, nil
}

func (e *expressionExtractor) Scorer(ctx context.Context, seg *search.Segment, req *Request) (search.Scorer, error) {
	var base search.Scorer
	if req.Base != nil {
		s, err := req.Base.Scorer(ctx, seg)
		if err != nil {
			return nil, err
		}
		base = s
	}
	efi := map[string]string(req.EFI)
	return search.NewDenseScorer(seg.MaxDoc(), func(doc int) (float64, error) {
		d := seg.Doc(doc)
		vars := make(map[string]any, len(d.Fields)+len(d.Values))
		for k, v := range d.Fields {
			vars[k] = v
		}
		for k, v := range d.Values {
			vars[k] = v
		}
		var score float64
		if base != nil {
			if base.DocID() < doc {
				base.Advance(doc)
			}
			if base.DocID() == doc {
				s, err := base.Score()
				if err != nil {
					return 0, err
				}
				score = s
			}
		}
		return e.prg.EvalFloat(dsl.Input{Doc: vars, EFI: efi, Score: score})
	}), nil
}
